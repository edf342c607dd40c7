package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SynapseMedia/protocol-core-v1/config"
	"github.com/SynapseMedia/protocol-core-v1/core/events"
	"github.com/SynapseMedia/protocol-core-v1/core/state"
	"github.com/SynapseMedia/protocol-core-v1/core/types"
	"github.com/SynapseMedia/protocol-core-v1/integrations/policyhook"
	"github.com/SynapseMedia/protocol-core-v1/native/bank"
	"github.com/SynapseMedia/protocol-core-v1/native/registry"
	"github.com/SynapseMedia/protocol-core-v1/native/rights"
	"github.com/SynapseMedia/protocol-core-v1/observability/logging"
	"github.com/SynapseMedia/protocol-core-v1/rpc"
	"github.com/SynapseMedia/protocol-core-v1/storage"
)

func main() {
	configFile := flag.String("config", "./rights.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "DEV ONLY: keep all state in memory instead of the data directory")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RIGHTS_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logOpts := []logging.Option{}
	if cfg.LogPath != "" {
		logOpts = append(logOpts, logging.WithFile(cfg.LogPath))
	}
	logger := logging.Setup("rightsd", env, logOpts...)

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		defer leveldb.Close()
		db = leveldb
	}

	manager := state.NewManager(db)
	if err := manager.EnsureSchema(); err != nil {
		logger.Error("State schema check failed", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := buildEngine(cfg, manager)
	if err != nil {
		logger.Error("Failed to assemble engine", slog.Any("error", err))
		os.Exit(1)
	}

	recorder := events.NewRecorder(1024)
	engine.SetEmitter(recorder)

	server := rpc.NewServer(engine,
		rpc.WithLogger(logger),
		rpc.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		rpc.WithEvents(recorder),
	)
	if cfg.MetricsAddress != "" && cfg.MetricsAddress != cfg.ListenAddress {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}
	logger.Info("rights daemon ready",
		slog.String("listen", cfg.ListenAddress),
		slog.Int("policies", len(cfg.Policies)),
		slog.Int("distributors", len(cfg.Distributors)))
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// buildEngine wires the settlement engine from configuration: the static
// registry seeds ownership, enrollment, activation, and audit views, and the
// webhook resolver binds policy and distributor addresses to their endpoints.
func buildEngine(cfg *config.Config, manager *state.Manager) (*rights.Engine, error) {
	governance, err := types.ParseAddress(cfg.GovernanceAddress)
	if err != nil {
		return nil, fmt.Errorf("governance address: %w", err)
	}
	treasury, err := types.ParseAddress(cfg.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("treasury address: %w", err)
	}
	vault, err := types.ParseAddress(cfg.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("vault address: %w", err)
	}

	reg := registry.New()
	resolver := policyhook.NewResolver()
	for _, entry := range cfg.Contents {
		contentID, err := types.ParseHash(entry.ContentID)
		if err != nil {
			return nil, fmt.Errorf("content id %q: %w", entry.ContentID, err)
		}
		owner, err := types.ParseAddress(entry.Owner)
		if err != nil {
			return nil, fmt.Errorf("content owner %q: %w", entry.Owner, err)
		}
		reg.SetOwner(contentID, owner)
		reg.SetContentActive(contentID, entry.Active)
	}
	for _, entry := range cfg.Distributors {
		addr, err := types.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("distributor address %q: %w", entry.Address, err)
		}
		reg.SetDistributorActive(addr, entry.Active)
		resolver.RegisterDistributor(addr, entry.Endpoint)
	}
	for _, entry := range cfg.Policies {
		addr, err := types.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("policy address %q: %w", entry.Address, err)
		}
		reg.SetAudited(addr, entry.Audited)
		resolver.RegisterPolicy(addr, entry.Endpoint)
	}

	engine := rights.NewEngine()
	engine.SetState(manager)
	engine.SetBank(bank.New(manager))
	engine.SetVaultAccount(vault)
	engine.SetOwnership(reg.Ownership())
	engine.SetEnrollment(reg.Enrollment())
	engine.SetContentRegistry(reg.Contents())
	engine.SetAuditOracle(reg.Audit())
	engine.SetResolver(resolver)
	engine.SetGovernance(governance)
	engine.SetTreasury(treasury)

	for _, entry := range cfg.Currencies {
		currency, err := types.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("currency address %q: %w", entry.Address, err)
		}
		if err := engine.SetFees(governance, currency, entry.FeeBps); err != nil {
			return nil, fmt.Errorf("configure fee for %s: %w", entry.Address, err)
		}
	}
	return engine, nil
}
