// Copyright 2025 Certen Protocol
//
// WaitForConfirmation polls for a transaction's receipt and then for the
// configured number of additional block confirmations, mirroring
// pkg/chain/strategy/evm_observer.go's waitForReceipt/waitForConfirmations
// two-phase poll, simplified to report success/revert/timeout rather than
// constructing Merkle inclusion proofs.

package chainclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrConfirmationTimeout is returned when a transaction has not reached
// its required confirmation depth before the deadline.
var ErrConfirmationTimeout = errors.New("timed out waiting for transaction confirmation")

const defaultPollingInterval = 5 * time.Second

// WaitForConfirmation blocks until txHash's receipt has accumulated
// confirmationBlocks additional blocks, or ctx is done. A reverted receipt
// returns chainclient.ErrRevertedOnChain.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash common.Hash, confirmationBlocks uint64, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)

	receipt, err := c.waitForReceipt(ctx, txHash, deadline)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: tx %s", ErrRevertedOnChain, txHash.Hex())
	}

	ticker := time.NewTicker(defaultPollingInterval)
	defer ticker.Stop()

	for {
		head, err := c.Eth.BlockNumber(ctx)
		if err == nil && head >= receipt.BlockNumber.Uint64()+confirmationBlocks {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, ErrConfirmationTimeout
			}
		}
	}
}

func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash, deadline time.Time) (*types.Receipt, error) {
	ticker := time.NewTicker(defaultPollingInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.Eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return nil, ErrConfirmationTimeout
			}
		}
	}
}
