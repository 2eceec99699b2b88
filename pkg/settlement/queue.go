// Copyright 2025 Certen Protocol
//
// Queue owns one Worker per configured chain. Cross-chain concurrency is
// unbounded (spec.md section 9): each chain's worker runs and retries
// independently, so a slow or unavailable chain never blocks settlement on
// another.

package settlement

import (
	"context"
	"time"

	"github.com/certen/independant-validator/pkg/chainclient"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/storexec"
)

// Queue fans out settlement work across every configured chain's Worker.
type Queue struct {
	workers map[uint64]*Worker
}

// NewQueue constructs one Worker per chain in chains, wired against its
// dialed chainclient.Client from registry.
func NewQueue(registry *chainclient.Registry, chains map[uint64]*config.ChainConfig, requests *storexec.SettlementRepository, proofs *storexec.ProofArtifactRepository, cfg config.Config) (*Queue, error) {
	q := &Queue{workers: make(map[uint64]*Worker, len(chains))}
	for chainID, chain := range chains {
		client, err := registry.Get(chainID)
		if err != nil {
			return nil, err
		}
		workerCfg := WorkerConfig{
			MaxInFlight:        cfg.MaxInFlightPerChain,
			ConfirmationBlocks: chain.ConfirmationBlocks,
			ConfirmationWait:   10 * time.Minute,
			BaseBackoff:        cfg.SettlementBaseBackoff,
			MaxBackoff:         cfg.SettlementMaxBackoff,
			MaxRetries:         cfg.MaxRetriesPerChain,
		}
		q.workers[chainID] = NewWorker(client, chain.JobMarketplace, requests, proofs, workerCfg)
	}
	return q, nil
}

// StartAll starts every chain's worker loop.
func (q *Queue) StartAll(ctx context.Context) {
	for _, w := range q.workers {
		w.Start(ctx)
	}
}

// StopAll stops every chain's worker loop and waits for each to drain.
func (q *Queue) StopAll() {
	for _, w := range q.workers {
		w.Stop()
	}
}

// Worker returns the worker for chainID, if one is configured.
func (q *Queue) Worker(chainID uint64) (*Worker, bool) {
	w, ok := q.workers[chainID]
	return w, ok
}
