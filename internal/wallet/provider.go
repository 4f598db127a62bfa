package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrReceiptNotFound signals that a transaction has been submitted but is not
// yet included in a block. Providers must return it (possibly wrapped) from
// TransactionReceipt while the transaction is pending; the confirmation poll
// treats it as a normal wait-and-retry signal.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// AccountUpdate is pushed by a provider whenever the selected account changes.
// Connected=false means the wallet disconnected or deselected all accounts.
type AccountUpdate struct {
	Account   common.Address
	Connected bool
}

// CallMsg describes a contract interaction. A nil To targets contract
// creation. Gas of zero lets the provider/node choose during estimation.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Data  []byte
	Gas   uint64
	Value *big.Int
}

// Provider is the opaque wallet/chain capability the connector builds on:
// account state, message signing and raw chain RPC. Implementations wrap a
// browser wallet bridge, a remote signer or an in-process key.
type Provider interface {
	// CurrentAccount and CurrentChainID are live reads of volatile provider
	// state; ok is false when no wallet or chain is selected.
	CurrentAccount() (account common.Address, ok bool)
	CurrentChainID() (chainID uint64, ok bool)

	// SubscribeAccountChanges registers a callback for account updates and
	// returns an unsubscribe function. Updates are delivered sequentially in
	// the order the provider observes them.
	SubscribeAccountChanges(handler func(AccountUpdate)) (unsubscribe func())

	// RequestSignature asks the wallet holder to sign a human-readable
	// message with the given account's key.
	RequestSignature(ctx context.Context, account common.Address, message string) ([]byte, error)

	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, msg CallMsg) (common.Hash, error)
	ReadContract(ctx context.Context, msg CallMsg) ([]byte, error)

	// TransactionReceipt returns the receipt for a mined transaction, or an
	// error wrapping ErrReceiptNotFound while it is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// SwitchNetwork asks the wallet to change its active chain. Providers
	// report an unknown chain with numeric error code 4902 (see NumericCode).
	SwitchNetwork(ctx context.Context, chainID uint64) error
}

// EIP-1193 style provider error codes.
const (
	CodeUserRejectedRequest = 4001
	CodeUnrecognizedChain   = 4902
)

// numericError is satisfied by provider errors that carry a numeric code,
// including go-ethereum's rpc.Error.
type numericError interface {
	error
	ErrorCode() int
}

// NumericCode extracts a provider error code from err, or 0 if none exists.
func NumericCode(err error) int {
	var ne numericError
	if errors.As(err, &ne) {
		return ne.ErrorCode()
	}
	return 0
}

// ExecutionError marks a provider failure where execution could not complete
// at all, typically because the chain was unreachable. The classifier maps it
// to a connectivity timeout condition when no revert reason is present.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }
