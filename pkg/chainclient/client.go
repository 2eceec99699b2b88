// Copyright 2025 Certen Protocol
//
// Per-chain Ethereum client: one ethclient.Client plus a keyed transactor
// per configured chain, grounded on pkg/chain/strategy/evm_strategy.go's
// NewEVMStrategy dial/chainID/transactor setup sequence. Used by both the
// Settlement Queue (sending settlement transactions) and the Model
// Authorizer (read-only contract calls).

package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/cryptosession"
)

// Client wraps one chain's ethclient connection and the node's signing
// identity on that chain.
type Client struct {
	ChainID    uint64
	Chain      *config.ChainConfig
	Eth        *ethclient.Client
	Auth       *bind.TransactOpts
	evmChainID *big.Int
}

// Dial connects to chain's RPC endpoint and builds a keyed transactor for
// nodeKey, verifying the RPC's reported chain ID matches the configured
// one.
func Dial(ctx context.Context, chain *config.ChainConfig, nodeKey *cryptosession.NodeKey) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d (%s): %w", chain.ChainID, chain.Name, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	evmChainID, err := eth.ChainID(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("query chain id for %s: %w", chain.Name, err)
	}
	if evmChainID.Uint64() != chain.ChainID {
		return nil, fmt.Errorf("chain %s RPC reports chain id %s, expected %d", chain.Name, evmChainID, chain.ChainID)
	}

	var auth *bind.TransactOpts
	if nodeKey != nil {
		auth, err = bind.NewKeyedTransactorWithChainID(nodeKey.Private, evmChainID)
		if err != nil {
			return nil, fmt.Errorf("create transactor for %s: %w", chain.Name, err)
		}
	}

	return &Client{
		ChainID:    chain.ChainID,
		Chain:      chain,
		Eth:        eth,
		Auth:       auth,
		evmChainID: evmChainID,
	}, nil
}

// SuggestGasPrice applies the chain's configured gas multiplier on top of
// the network's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := c.Eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	multiplier := c.Chain.GasMultiplierPercent
	if multiplier == 0 {
		multiplier = 100
	}
	adjusted := new(big.Int).Mul(suggested, big.NewInt(int64(multiplier)))
	adjusted.Div(adjusted, big.NewInt(100))
	return adjusted, nil
}

// PendingNonceAt returns the next nonce the chain expects from the node's
// address, including pending (unconfirmed) transactions.
func (c *Client) PendingNonceAt(ctx context.Context) (uint64, error) {
	if c.Auth == nil {
		return 0, fmt.Errorf("chain %d: no signer configured", c.ChainID)
	}
	return c.Eth.PendingNonceAt(ctx, c.Auth.From)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.Eth.Close()
}
