// Copyright 2025 Certen Protocol
//
// Compute-host node entrypoint: wires configuration, database, storage,
// chain clients, model authorization, the domain services (accounting,
// checkpointing, settlement), and the session transport server together
// in the startup order spec.md section 2 describes. Exit codes follow
// spec.md section 6: 0 normal, 1 model authorization failure, 2 missing
// configuration, 3 unrecoverable storage/chain-connectivity failure.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/certen/independant-validator/pkg/accounting"
	"github.com/certen/independant-validator/pkg/chainclient"
	"github.com/certen/independant-validator/pkg/checkpoint"
	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/cryptosession"
	"github.com/certen/independant-validator/pkg/inference"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/modelauth"
	"github.com/certen/independant-validator/pkg/orchestrator"
	"github.com/certen/independant-validator/pkg/session"
	"github.com/certen/independant-validator/pkg/settlement"
	"github.com/certen/independant-validator/pkg/storage"
	"github.com/certen/independant-validator/pkg/storexec"
	"github.com/certen/independant-validator/pkg/transport"
	"github.com/certen/independant-validator/pkg/zkproof"
)

const (
	exitOK                  = 0
	exitModelAuthFailure    = 1
	exitMissingConfig       = 2
	exitConnectivityFailure = 3
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("starting compute-host node")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("load configuration: %v", err)
		os.Exit(exitMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("%v", err)
		os.Exit(exitMissingConfig)
	}

	nodeKey, err := cryptosession.LoadNodeKey(cfg.HostPrivateKey)
	if err != nil {
		log.Printf("load node key: %v", err)
		os.Exit(exitMissingConfig)
	}

	db, err := storexec.NewClient(cfg)
	if err != nil {
		log.Printf("connect database: %v", err)
		os.Exit(exitConnectivityFailure)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.MigrateUp(migrateCtx)
	migrateCancel()
	if err != nil {
		log.Printf("run migrations: %v", err)
		os.Exit(exitConnectivityFailure)
	}

	checkpointRepo := storexec.NewCheckpointRepository(db)
	settlementRepo := storexec.NewSettlementRepository(db)
	proofRepo := storexec.NewProofArtifactRepository(db)

	store := storage.NewClient(storage.Config{
		PortalURL: cfg.StorageBaseURL,
		Enabled:   cfg.StorageEnabled,
	})

	registry := chainclient.NewRegistry()
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = registry.DialAll(dialCtx, cfg.Chains, nodeKey)
	dialCancel()
	if err != nil {
		log.Printf("dial chains: %v", err)
		os.Exit(exitConnectivityFailure)
	}
	defer registry.CloseAll()

	var authorizer *modelauth.Authorizer
	if cfg.EnableModelValidation {
		authorizer, err = buildAuthorizer(cfg, registry, nodeKey)
		if err != nil {
			log.Printf("model authorization: %v", err)
			os.Exit(exitModelAuthFailure)
		}
	} else {
		log.Println("WARNING: ENABLE_MODEL_VALIDATION is false - node will accept any model (development only)")
		authorizer = modelauth.NewDisabled(modelFilename(cfg), cfg.ModelID)
	}

	prover, err := buildProver(cfg)
	if err != nil {
		log.Printf("initialize zk prover: %v", err)
		os.Exit(exitMissingConfig)
	}

	queue, err := settlement.NewQueue(registry, cfg.Chains, settlementRepo, proofRepo, *cfg)
	if err != nil {
		log.Printf("build settlement queue: %v", err)
		os.Exit(exitConnectivityFailure)
	}

	submitter := settlement.NewSubmitter(prover, cfg.ProverMode, proofRepo, settlementRepo)
	index := checkpoint.NewIndex(checkpointRepo)
	publisher := checkpoint.NewPublisher(store, index, submitter, nodeKey.Private, cfg.ModelID)
	accountant := accounting.NewAccountant(publisher, cfg.CheckpointInterval)

	cleanup := checkpoint.NewCleanupScheduler(checkpointRepo, checkpoint.CleanupConfig{
		Retention: cfg.CheckpointRetention,
	})

	chains := make(map[uint64]bool, len(cfg.Chains))
	for id := range cfg.Chains {
		chains[id] = true
	}

	onEvict := func(sess *session.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := publisher.Run(ctx, sess); err != nil {
			log.Printf("session %s: final checkpoint on close failed: %v", sess.ID, err)
		}
	}
	sessions := session.NewStore(cfg.MaxSessions, chains, onEvict)
	sessionKeys := cryptosession.NewSessionKeyStore(cfg.SessionIdleTimeout)

	runtime := inference.NewMockRuntime()
	metadata := inference.ModelMetadata{
		ModelID:           cfg.ModelID,
		ChatTemplate:      cfg.ChatTemplate,
		ContextWindowSize: cfg.ContextWindowSize,
	}
	runner := orchestrator.NewPromptRunner(runtime, metadata, authorizer, modelFilename(cfg), accountant, sessions)

	handler := transport.NewHandler(sessions, nodeKey, sessionKeys, runner, chains, nil)

	metricsRegistry := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())

	queue.StartAll(ctx)
	cleanup.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsRegistry.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("session transport listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("transport server error: %v", err)
		}
	}()
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Println("compute-host node ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	cancel()
	queue.StopAll()
	cleanup.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("transport server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	os.Exit(exitOK)
}

// buildAuthorizer resolves the node's EVM address and runs the four-step
// model validation against one configured chain's model registry
// contract, per spec.md section 4.9. That chain is the first one map
// iteration yields, so with several chains configured which one is used
// is not fixed; the other chains' registries are not consulted.
func buildAuthorizer(cfg *config.Config, registry *chainclient.Registry, nodeKey *cryptosession.NodeKey) (*modelauth.Authorizer, error) {
	var chainID uint64
	for id := range cfg.Chains {
		chainID = id
		break
	}
	client, err := registry.Get(chainID)
	if err != nil {
		return nil, err
	}
	chain := cfg.Chains[chainID]
	modelRegistry := chainclient.NewModelRegistryContract(client, chain.ModelRegistry)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return modelauth.Build(ctx, modelRegistry, client.Auth.From, cfg.ModelPath)
}

// buildProver selects the real Groth16 prover (loading a prior trusted
// setup from disk) or the deterministic mock, per cfg.ProverMode.
func buildProver(cfg *config.Config) (zkproof.Prover, error) {
	if cfg.ProverMode != "groth16" {
		log.Println("zk prover running in mock mode - proofs are deterministic placeholders, not cryptographically sound")
		return zkproof.NewMockProver(), nil
	}
	prover := zkproof.NewGnarkProver()
	if err := prover.InitializeFromKeys(cfg.ProvingKeyPath, cfg.VerifyingKeyPath, cfg.ConstraintSystemPath); err != nil {
		return nil, err
	}
	return prover, nil
}

// modelFilename returns the filename portion of the configured model path,
// the key the dynamic model map is keyed by.
func modelFilename(cfg *config.Config) string {
	path := cfg.ModelPath
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
