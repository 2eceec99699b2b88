// Copyright 2025 Certen Protocol
//
// Registry holds one dialed Client per configured EVM chain, keyed by
// chain ID. Simplified from pkg/strategy/registry.go's multi-platform
// registry: spec.md only ever configures EVM chains (Base Sepolia, opBNB
// Testnet), so there is no attestation-scheme/platform-default machinery
// to carry forward, only chain-id keyed lookup.

package chainclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/cryptosession"
)

// Registry holds dialed chain clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint64]*Client)}
}

// DialAll connects to every configured chain and registers a Client for
// each. The first failing dial aborts and returns its error with enough
// context to identify which chain failed; already-dialed clients are
// closed before returning.
func (r *Registry) DialAll(ctx context.Context, chains map[uint64]*config.ChainConfig, nodeKey *cryptosession.NodeKey) error {
	for id, chain := range chains {
		client, err := Dial(ctx, chain, nodeKey)
		if err != nil {
			r.CloseAll()
			return fmt.Errorf("dial chain %d: %w", id, err)
		}
		r.mu.Lock()
		r.clients[id] = client
		r.mu.Unlock()
	}
	return nil
}

// Get returns the client for chainID, or ErrUnsupportedChain if none is
// registered.
func (r *Registry) Get(chainID uint64) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", ErrUnsupportedChain, chainID)
	}
	return client, nil
}

// ChainIDs returns all registered chain IDs.
func (r *Registry) ChainIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll releases every registered client's connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Close()
	}
	r.clients = make(map[uint64]*Client)
}
