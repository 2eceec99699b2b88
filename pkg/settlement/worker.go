// Copyright 2025 Certen Protocol
//
// Worker drains one chain's settlement queue: a single-writer-per-chain
// loop that owns that chain's NonceTracker, so nonce assignment never
// needs cross-task coordination (spec.md section 9's "Settlement queue"
// guidance). Start/Stop/Pause/Resume follows pkg/checkpoint's
// CleanupScheduler shape, itself grounded on pkg/batch/scheduler.go.

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/certen/independant-validator/pkg/chainclient"
	"github.com/certen/independant-validator/pkg/storexec"
)

// WorkerState mirrors pkg/checkpoint.CleanupState.
type WorkerState string

const (
	WorkerStateStopped WorkerState = "stopped"
	WorkerStateRunning WorkerState = "running"
	WorkerStatePaused  WorkerState = "paused"
)

// WorkerConfig configures one chain's settlement Worker.
type WorkerConfig struct {
	PollInterval       time.Duration // how often to check for due requests
	BatchSize          int           // max requests pulled from storage per poll
	MaxInFlight        int           // max concurrent on-chain submissions
	ConfirmationBlocks uint64
	ConfirmationWait   time.Duration
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	MaxRetries         int
	Logger             *log.Logger
}

func (c *WorkerConfig) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 4
	}
	if c.ConfirmationWait == 0 {
		c.ConfirmationWait = 10 * time.Minute
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 8
	}
}

// Worker submits settlement requests for one chain, enforcing
// max_in_flight_per_chain and strictly increasing nonces.
type Worker struct {
	chainID  uint64
	client   *chainclient.Client
	contract *chainclient.SettlementContract
	nonces   *chainclient.NonceTracker
	requests *storexec.SettlementRepository
	proofs   *storexec.ProofArtifactRepository

	cfg WorkerConfig
	sem chan struct{}

	mu     sync.RWMutex
	state  WorkerState
	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// NewWorker constructs a Worker for one chain.
func NewWorker(client *chainclient.Client, contractAddr string, requests *storexec.SettlementRepository, proofs *storexec.ProofArtifactRepository, cfg WorkerConfig) *Worker {
	cfg.setDefaults()
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), fmt.Sprintf("[SettlementWorker:%d] ", client.ChainID), log.LstdFlags)
	}
	return &Worker{
		chainID:  client.ChainID,
		client:   client,
		contract: chainclient.NewSettlementContract(client, contractAddr),
		nonces:   chainclient.NewNonceTracker(client),
		requests: requests,
		proofs:   proofs,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxInFlight),
		state:    WorkerStateStopped,
		logger:   cfg.Logger,
	}
}

// Start begins the poll/submit loop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == WorkerStateRunning {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.state = WorkerStateRunning
	go w.run(ctx)
	w.logger.Printf("settlement worker started (max_in_flight=%d)", w.cfg.MaxInFlight)
}

// Stop halts the loop and waits for in-flight submissions to release.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != WorkerStateRunning && w.state != WorkerStatePaused {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.state = WorkerStateStopped
	w.mu.Unlock()

	<-w.doneCh
	w.logger.Println("settlement worker stopped")
}

// Pause suspends polling without stopping the goroutine.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == WorkerStateRunning {
		w.state = WorkerStatePaused
	}
}

// Resume un-suspends a paused worker.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == WorkerStatePaused {
		w.state = WorkerStateRunning
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.RLock()
			state := w.state
			w.mu.RUnlock()
			if state != WorkerStateRunning {
				continue
			}
			w.poll(ctx)
		}
	}
}

// poll fetches due requests, orders them through the priority heap, and
// dispatches each respecting max_in_flight_per_chain.
func (w *Worker) poll(ctx context.Context) {
	due, err := w.requests.DueForAttempt(ctx, w.chainID, w.cfg.BatchSize)
	if err != nil {
		w.logger.Printf("poll due requests failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	byID := make(map[int64]*storexec.SettlementRequest, len(due))
	pq := newPriorityQueue()
	for _, req := range due {
		byID[req.ID] = req
		pq.Push(req.ID, req.Priority, req.NextAttemptAt)
	}

	for {
		item, ok := pq.Pop()
		if !ok {
			return
		}
		req := byID[item.requestID]

		select {
		case w.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		go func(req *storexec.SettlementRequest) {
			defer func() { <-w.sem }()
			w.process(ctx, req)
		}(req)
	}
}

// process runs spec.md section 4.8's submission loop for one request:
// fetch proof artifact, reserve nonce, submit, then watch for
// confirmation, retrying or dead-lettering on failure.
func (w *Worker) process(ctx context.Context, req *storexec.SettlementRequest) {
	attemptID := uuid.NewString()
	w.logger.Printf("attempt %s: request %d (session=%s sequence=%d)", attemptID, req.ID, req.SessionID, req.CheckpointSequence)

	artifact, err := w.proofs.BySequence(ctx, req.SessionID, req.CheckpointSequence)
	if err != nil {
		w.retry(ctx, req, fmt.Errorf("load proof artifact: %w", err))
		return
	}

	publicInputs, err := decodePublicInputs(artifact.PublicInputs)
	if err != nil {
		w.retry(ctx, req, fmt.Errorf("decode public inputs: %w", err))
		return
	}

	jobIDBig, ok := new(big.Int).SetString(req.JobID, 10)
	if !ok {
		w.dropPermanently(ctx, req, fmt.Errorf("job id %q is not a valid integer", req.JobID))
		return
	}

	nonce, err := w.nonces.Next(ctx)
	if err != nil {
		w.retry(ctx, req, fmt.Errorf("reserve nonce: %w", err))
		return
	}

	txHash, submitErr := w.submitOnce(ctx, req, artifact, jobIDBig, publicInputs, nonce)
	if submitErr != nil {
		classified := classifySubmitError(submitErr)
		if classified == chainclient.ErrNonceConflict {
			w.nonces.MarkFailed(nonce)
			w.logger.Printf("request %d: nonce conflict, resyncing and retrying once", req.ID)
			if err := w.nonces.Refresh(ctx); err != nil {
				w.logger.Printf("nonce resync failed: %v", err)
			}
			if retryNonce, err := w.nonces.Next(ctx); err == nil {
				if hash, err := w.submitOnce(ctx, req, artifact, jobIDBig, publicInputs, retryNonce); err == nil {
					txHash = hash
					nonce = retryNonce
					submitErr = nil
				} else {
					w.nonces.MarkFailed(retryNonce)
					submitErr = err
				}
			}
		}
	}
	if submitErr != nil {
		w.nonces.MarkFailed(nonce)
		w.retry(ctx, req, fmt.Errorf("submit settlement transaction: %w", submitErr))
		return
	}

	w.nonces.MarkSubmitted(nonce)
	if err := w.requests.MarkSubmitted(ctx, req.ID, txHash.Hex(), nonce); err != nil {
		w.logger.Printf("request %d: mark submitted failed: %v", req.ID, err)
	}

	_, err = w.client.WaitForConfirmation(ctx, txHash, w.cfg.ConfirmationBlocks, w.cfg.ConfirmationWait)
	if err != nil {
		if errors.Is(err, chainclient.ErrRevertedOnChain) {
			w.dropPermanently(ctx, req, err)
			return
		}
		w.retry(ctx, req, fmt.Errorf("wait for confirmation: %w", err))
		return
	}
	w.nonces.MarkConfirmed(nonce)

	if err := w.requests.MarkConfirmed(ctx, req.ID); err != nil {
		w.logger.Printf("request %d: mark confirmed failed: %v", req.ID, err)
		return
	}
	w.logger.Printf("attempt %s: request %d confirmed (session=%s sequence=%d tx=%s)", attemptID, req.ID, req.SessionID, req.CheckpointSequence, txHash.Hex())
}

func (w *Worker) submitOnce(ctx context.Context, req *storexec.SettlementRequest, artifact *storexec.ProofArtifact, jobIDBig *big.Int, publicInputs [4][32]byte, nonce uint64) (common.Hash, error) {
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", chainclient.ErrProviderUnavailable, err)
	}

	auth := *w.client.Auth
	auth.Context = ctx
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasPrice = gasPrice

	tx, err := w.contract.SubmitCheckpoint(ctx, &auth, jobIDBig, req.ChainID, req.BillableTokens, req.CheckpointCID, artifact.ProofBytes, publicInputs)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (w *Worker) retry(ctx context.Context, req *storexec.SettlementRequest, cause error) {
	backoff := nextBackoff(req.AttemptCount, w.cfg.BaseBackoff, w.cfg.MaxBackoff)
	w.logger.Printf("request %d: attempt %d failed, retrying in %s: %v", req.ID, req.AttemptCount+1, backoff, cause)
	if err := w.requests.MarkRetry(ctx, req.ID, cause, time.Now().Add(backoff), w.cfg.MaxRetries); err != nil {
		w.logger.Printf("request %d: mark retry failed: %v", req.ID, err)
	}
}

func (w *Worker) dropPermanently(ctx context.Context, req *storexec.SettlementRequest, cause error) {
	w.logger.Printf("request %d: dead-lettered: %v", req.ID, cause)
	if err := w.requests.MarkRetry(ctx, req.ID, cause, time.Now(), 0); err != nil {
		w.logger.Printf("request %d: mark dead-letter failed: %v", req.ID, err)
	}
}

func decodePublicInputs(raw json.RawMessage) ([4][32]byte, error) {
	var decimalStrings []string
	if err := json.Unmarshal(raw, &decimalStrings); err != nil {
		return [4][32]byte{}, err
	}
	if len(decimalStrings) != 4 {
		return [4][32]byte{}, fmt.Errorf("expected 4 public inputs, got %d", len(decimalStrings))
	}
	var out [4][32]byte
	for i, s := range decimalStrings {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return [4][32]byte{}, fmt.Errorf("public input %d is not a valid integer: %q", i, s)
		}
		n.FillBytes(out[i][:])
	}
	return out, nil
}

