// Package wallet wraps an external wallet provider with connection-state
// tracking, chain-aware contract operations, gas estimation with a safety
// margin, bounded receipt polling and normalized error reporting.
package wallet

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"community-dapp/go-client/internal/apperrors"
	"community-dapp/go-client/internal/events"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
)

// Event channels emitted by the connector.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventAccountChanged = "account-changed"
)

const (
	defaultConfirmInterval = time.Second
	defaultConfirmTimeout  = 30 * time.Second

	// Estimated gas is padded by +20% before submission, truncating.
	gasPadNumerator   = 120
	gasPadDenominator = 100
)

// Options tune a single Send or Deploy call. A non-zero GasLimit overrides
// the padded estimate.
type Options struct {
	GasLimit             uint64
	Value                *big.Int
	ConfirmationInterval time.Duration
	ConfirmationTimeout  time.Duration
}

// Connector tracks the wallet connection and exposes chain operations against
// the provider's active chain. Connection state changes only inside the
// provider's account-change callback; `account-changed` is emitted on every
// callback invocation, because the account can change within the connected
// state too.
type Connector struct {
	appName  string
	provider Provider
	notifier *events.Notifier
	log      *slog.Logger
	metrics  *connectorMetrics

	confirmInterval time.Duration
	confirmTimeout  time.Duration

	mu          sync.Mutex
	state       State
	account     common.Address
	unsubscribe func()
}

type Option func(*Connector)

func WithLogger(log *slog.Logger) Option {
	return func(c *Connector) { c.log = log }
}

// WithConfirmation overrides the default receipt-poll interval and timeout.
func WithConfirmation(interval, timeout time.Duration) Option {
	return func(c *Connector) {
		if interval > 0 {
			c.confirmInterval = interval
		}
		if timeout > 0 {
			c.confirmTimeout = timeout
		}
	}
}

func New(appName string, provider Provider, opts ...Option) *Connector {
	c := &Connector{
		appName:         appName,
		provider:        provider,
		notifier:        events.New(EventConnected, EventDisconnected, EventAccountChanged),
		log:             slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("component", "wallet"),
		metrics:         sharedMetrics(),
		confirmInterval: defaultConfirmInterval,
		confirmTimeout:  defaultConfirmTimeout,
		state:           StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = provider.SubscribeAccountChanges(c.handleAccountChanged)
	return c
}

// On subscribes a handler to a connector event channel and returns an
// unsubscribe function.
func (c *Connector) On(event string, handler func(payload any)) (func(), error) {
	return c.notifier.Subscribe(event, handler)
}

// Close detaches the connector from the provider's account updates.
func (c *Connector) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Connector) handleAccountChanged(upd AccountUpdate) {
	c.mu.Lock()
	prev := c.state
	if upd.Connected {
		c.account = upd.Account
		c.state = StateConnected
		c.log.Debug("wallet connected", "account", upd.Account.Hex())
	} else {
		c.account = common.Address{}
		c.state = StateDisconnected
		c.log.Debug("wallet disconnected")
	}
	state := c.state
	c.mu.Unlock()

	if state != prev {
		if state == StateConnected {
			_ = c.notifier.Emit(EventConnected, upd.Account)
		} else {
			_ = c.notifier.Emit(EventDisconnected, nil)
		}
	}
	_ = c.notifier.Emit(EventAccountChanged, upd)
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Account returns the provider's currently selected account.
func (c *Connector) Account() (common.Address, bool) {
	return c.provider.CurrentAccount()
}

// ChainID returns the provider's active chain id.
func (c *Connector) ChainID() (uint64, bool) {
	return c.provider.CurrentChainID()
}

func (c *Connector) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return apperrors.New(apperrors.CodeWalletUnavailable, "wallet is not available")
	}
	return nil
}

// Login requests a signature over the fixed login message from the given
// account (or the current one if account is the zero address). A decline by
// the wallet holder is reported as a user-rejection.
func (c *Connector) Login(ctx context.Context, account common.Address) ([]byte, error) {
	if (account == common.Address{}) {
		c.mu.Lock()
		account = c.account
		c.mu.Unlock()
	}
	sig, err := c.provider.RequestSignature(ctx, account, "Login to "+c.appName)
	if err != nil {
		if NumericCode(err) == CodeUserRejectedRequest {
			return nil, apperrors.Wrap(apperrors.CodeUserRejected, "signature request was declined", err)
		}
		return nil, err
	}
	return sig, nil
}

// Call performs a read-only contract invocation and unpacks the result.
func (c *Connector) Call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, params ...any) ([]any, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, params...)
	if err != nil {
		return nil, err
	}
	from, _ := c.provider.CurrentAccount()
	out, err := c.provider.ReadContract(ctx, CallMsg{From: from, To: &contract, Data: data})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	return contractABI.Unpack(method, out)
}

// EstimateGas estimates gas for an arbitrary message.
func (c *Connector) EstimateGas(ctx context.Context, msg CallMsg) (uint64, error) {
	if err := c.requireConnected(); err != nil {
		return 0, err
	}
	estimate, err := c.provider.EstimateGas(ctx, msg)
	if err != nil {
		return 0, classifyProviderError(err)
	}
	return estimate, nil
}

// EstimateContractGas estimates gas for a contract method call.
func (c *Connector) EstimateContractGas(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, params ...any) (uint64, error) {
	if err := c.requireConnected(); err != nil {
		return 0, err
	}
	data, err := contractABI.Pack(method, params...)
	if err != nil {
		return 0, err
	}
	from, _ := c.provider.CurrentAccount()
	return c.EstimateGas(ctx, CallMsg{From: from, To: &contract, Data: data})
}

// PadGas applies the fixed +20% safety margin, truncating.
func PadGas(estimate uint64) uint64 {
	return estimate * gasPadNumerator / gasPadDenominator
}

// Send submits a state-mutating contract call: estimate, pad the estimate,
// submit with the padded limit (unless the caller supplied one), then wait
// for the receipt.
func (c *Connector) Send(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, params []any, opts *Options) (*types.Receipt, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	data, err := contractABI.Pack(method, params...)
	if err != nil {
		return nil, err
	}
	return c.submitAndConfirm(ctx, &contract, data, opts)
}

// Deploy submits a contract-creation transaction through the same
// estimate/pad/submit/confirm sequence as Send and returns the deployed
// contract's address from the receipt.
func (c *Connector) Deploy(ctx context.Context, contractABI abi.ABI, bytecode []byte, params []any, opts *Options) (common.Address, error) {
	if err := c.requireConnected(); err != nil {
		return common.Address{}, err
	}
	ctorArgs, err := contractABI.Pack("", params...)
	if err != nil {
		return common.Address{}, err
	}
	data := append(append([]byte{}, bytecode...), ctorArgs...)
	receipt, err := c.submitAndConfirm(ctx, nil, data, opts)
	if err != nil {
		return common.Address{}, err
	}
	return receipt.ContractAddress, nil
}

func (c *Connector) submitAndConfirm(ctx context.Context, to *common.Address, data []byte, opts *Options) (*types.Receipt, error) {
	if opts == nil {
		opts = &Options{}
	}
	from, _ := c.provider.CurrentAccount()
	msg := CallMsg{From: from, To: to, Data: data, Value: opts.Value}

	estimate, err := c.provider.EstimateGas(ctx, msg)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	msg.Gas = PadGas(estimate)
	if opts.GasLimit > 0 {
		msg.Gas = opts.GasLimit
	}

	hash, err := c.provider.SendTransaction(ctx, msg)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	c.metrics.submitted.Inc()
	c.log.Debug("transaction submitted", "hash", hash.Hex(), "gas", msg.Gas)

	interval := c.confirmInterval
	if opts.ConfirmationInterval > 0 {
		interval = opts.ConfirmationInterval
	}
	timeout := c.confirmTimeout
	if opts.ConfirmationTimeout > 0 {
		timeout = opts.ConfirmationTimeout
	}
	return c.awaitReceipt(ctx, hash, interval, timeout)
}

// SwitchChain asks the wallet to change its active network. An unknown chain
// is reported as a chain-missing condition carrying the chain reference so
// the caller can prompt the user to add it.
func (c *Connector) SwitchChain(ctx context.Context, chainID uint64, chainName string) error {
	err := c.provider.SwitchNetwork(ctx, chainID)
	if err == nil {
		return nil
	}
	if NumericCode(err) == CodeUnrecognizedChain {
		return &apperrors.Error{
			Code:    apperrors.CodeChainMissing,
			Message: "Add the chain to your wallet and try again",
			Cause:   err,
			Chain:   &apperrors.ChainRef{ID: chainID, Name: chainName},
		}
	}
	c.log.Warn("switch chain failed", "chainId", chainID, "err", err)
	return err
}
