package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"community-dapp/go-client/internal/apperrors"
)

const confirmTimeoutMessage = "Timed out waiting for transaction. The network could just be busy and your transaction may still go through. Check your wallet for more information."

// awaitReceipt polls for the transaction receipt at a fixed interval until it
// appears or the timeout elapses. A not-found response is a normal
// not-yet-confirmed signal; any other provider error is logged and treated
// the same way, so transient failures never abort the wait early.
func (c *Connector) awaitReceipt(ctx context.Context, hash common.Hash, interval, timeout time.Duration) (*types.Receipt, error) {
	start := time.Now()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	var lastErr error
	for {
		receipt, err := c.provider.TransactionReceipt(ctx, hash)
		c.metrics.pollAttempts.Inc()
		if err == nil && receipt != nil {
			c.metrics.confirmed.Inc()
			c.metrics.confirmSeconds.Observe(time.Since(start).Seconds())
			c.log.Debug("transaction confirmed", "hash", hash.Hex(), "block", receipt.BlockNumber)
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ErrReceiptNotFound) {
			c.log.Warn("receipt poll failed, retrying", "hash", hash.Hex(), "err", err)
		}
		lastErr = err

		if time.Since(start) >= timeout {
			c.metrics.confirmFailed.Inc()
			return nil, apperrors.Wrap(apperrors.CodeTimeout, confirmTimeoutMessage, lastErr)
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			c.metrics.confirmFailed.Inc()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
