package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scavtools/scavminer/internal/ashmaize"
	"github.com/scavtools/scavminer/internal/config"
	"github.com/scavtools/scavminer/internal/logging"
	"github.com/scavtools/scavminer/internal/metrics"
	"github.com/scavtools/scavminer/internal/miner"
	"github.com/scavtools/scavminer/internal/orchestrator"
	"github.com/scavtools/scavminer/internal/scavenger"
	"github.com/scavtools/scavminer/internal/store"
	"github.com/scavtools/scavminer/internal/sysinfo"
	"github.com/scavtools/scavminer/internal/wallet"
)

// mineCmd represents the mine command
var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Start mining",
	Long: `Start the mining loop with the specified configuration.

Examples:
  # Mine with default config
  scavminer mine

  # Mine with a specific config and wallet list
  scavminer mine --config custom-config.yaml --wallets wallets.txt

  # Use 80% of logical CPUs and cap each search at 500M hashes
  scavminer mine --cpu-percent 80 --max-hashes 500`,
	RunE: runMine,
}

func init() {
	rootCmd.AddCommand(mineCmd)

	mineCmd.Flags().String("wallets", "", "wallet address list file (overrides config)")
	mineCmd.Flags().Float64("cpu-percent", 0, "percentage of logical CPUs to use (overrides config)")
	mineCmd.Flags().Float64("max-hashes", 0, "per-task hash budget in millions (overrides config)")
	mineCmd.Flags().String("api-url", "", "Scavenger Mine service URL (overrides config)")
}

func runMine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyMineOverrides(cmd, cfg)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting scavminer",
		zap.String("version", Version),
		zap.String("config", cfgFile),
		zap.String("api_url", cfg.API.BaseURL),
	)

	cpu := sysinfo.DetectCPU()
	threads := cpu.Threads(cfg.Mining.CPUPercent)
	cpu.Log(logger, threads, cfg.Mining.CPUPercent)

	wallets, err := wallet.NewProvider(logger, cfg.Mining.WalletsFile)
	if err != nil {
		return fmt.Errorf("failed to load wallets: %w", err)
	}
	defer wallets.Close()
	logger.Info("wallets loaded", zap.Int("count", wallets.Count()))

	solutions, err := store.NewSolutionStore(logger, cfg.Storage.SolutionsDir)
	if err != nil {
		return fmt.Errorf("failed to open solution store: %w", err)
	}
	difficult := store.NewDifficultStore(logger, cfg.Storage.DifficultTasksFile)

	client := scavenger.NewClient(logger, cfg.API.BaseURL,
		time.Duration(cfg.API.TimeoutSeconds)*time.Second)

	m := metrics.New()

	tables := ashmaize.NewCache(logger, ashmaize.Params{
		Size:      cfg.Rom.SizeBytes,
		PreSize:   cfg.Rom.PreSizeBytes,
		MixRounds: cfg.Rom.MixRounds,
	})
	tables.BuildHook = func(time.Duration) { m.RomBuilds.Inc() }

	engine := miner.NewEngine(logger, cfg.Rom.HashLoops, cfg.Rom.HashInstrs)

	orch := orchestrator.New(logger, cfg, client, engine, tables, wallets,
		solutions, difficult, m, threads)

	var srv *metrics.Server
	if cfg.Metrics.Enabled {
		srv = metrics.NewServer(logger, cfg.Metrics.ListenAddr, m, orch.Status)
		srv.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	err = orch.Run(ctx)

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("metrics server shutdown", zap.Error(serr))
		}
	}
	return err
}

func applyMineOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("wallets"); v != "" {
		cfg.Mining.WalletsFile = v
	}
	if v, _ := cmd.Flags().GetFloat64("cpu-percent"); v > 0 {
		cfg.Mining.CPUPercent = v
	}
	if v, _ := cmd.Flags().GetFloat64("max-hashes"); v > 0 {
		cfg.Mining.MaxHashesMillions = v
	}
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.API.BaseURL = v
	}
}
