package localprovider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"community-dapp/go-client/internal/wallet"
)

// rpcBackend executes chain operations against one RPC endpoint, signing
// transactions locally with the provider key. All requests pass the shared
// rate limiter first.
type rpcBackend struct {
	client  *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	limiter *rate.Limiter
}

func dialBackend(ctx context.Context, chain Chain, key *ecdsa.PrivateKey, from common.Address, limiter *rate.Limiter) (*rpcBackend, error) {
	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, wrapTransport(err)
	}
	return &rpcBackend{
		client:  client,
		chainID: new(big.Int).SetUint64(chain.ID),
		key:     key,
		from:    from,
		limiter: limiter,
	}, nil
}

func (b *rpcBackend) close() {
	b.client.Close()
}

func (b *rpcBackend) callMsg(msg wallet.CallMsg) ethereum.CallMsg {
	return ethereum.CallMsg{
		From:  msg.From,
		To:    msg.To,
		Gas:   msg.Gas,
		Value: msg.Value,
		Data:  msg.Data,
	}
}

func (b *rpcBackend) estimateGas(ctx context.Context, msg wallet.CallMsg) (uint64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	gas, err := b.client.EstimateGas(ctx, b.callMsg(msg))
	if err != nil {
		return 0, wrapTransport(err)
	}
	return gas, nil
}

func (b *rpcBackend) sendTransaction(ctx context.Context, msg wallet.CallMsg) (common.Hash, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return common.Hash{}, wrapTransport(err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, wrapTransport(err)
	}

	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       msg.To,
		Value:    value,
		Gas:      msg.Gas,
		GasPrice: gasPrice,
		Data:     msg.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return common.Hash{}, err
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapTransport(err)
	}
	return signed.Hash(), nil
}

func (b *rpcBackend) readContract(ctx context.Context, msg wallet.CallMsg) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := b.client.CallContract(ctx, b.callMsg(msg), nil)
	if err != nil {
		return nil, wrapTransport(err)
	}
	return out, nil
}

func (b *rpcBackend) transactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := b.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", wallet.ErrReceiptNotFound, hash.Hex())
		}
		return nil, wrapTransport(err)
	}
	return receipt, nil
}

// wrapTransport marks network-level failures as execution errors so the
// connector classifies them as connectivity problems rather than passing a
// raw dial error to the UI.
func wrapTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &wallet.ExecutionError{Err: err}
	}
	return err
}
