package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
	"github.com/BrandonDHaskell/Portunus/controller/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/mqttcmd"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/controller"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/decision"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/exitsensor"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/reader"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Simulate  bool
	Ephemeral bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the door controller",
		Long: `Run the door controller until interrupted.

The controller drives simulated hardware. With --simulate it reads
commands from stdin, one per line:

  card <hex uid>   present a card
  exit             press the exit button
  jam | unjam      stop or resume reader communication

Example:
  portunus-controller run --simulate --ephemeral
  PORTUNUS_MQTT_BROKER=tcp://localhost:1883 portunus-controller run --db ./door.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Simulate, "simulate", false, "read simulated hardware commands from stdin")
	cmd.Flags().BoolVar(&opts.Ephemeral, "ephemeral", false, "use an in-memory database")

	return cmd
}

func runController(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger, err := opts.logger(cfg, false)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, opts.Ephemeral, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close database", zap.Error(err))
		}
	}()
	g := st.guard
	t := cfg.Timing

	boot(ctx, g, cfg, logger)

	// Real-time side.
	bus := eventbus.New(cfg.BusCapacity, logger)
	engine := decision.NewEngine(g, t.RealtimeGuardTimeout, logger)

	simReader := hw.NewReader(logger)
	exitIn := hw.NewInput()

	driver := reader.NewDriver(simReader, engine, bus, reader.Config{
		ReadCooldown:         t.ReadCooldown,
		ProbeInterval:        t.ProbeInterval,
		AntennaCycleInterval: t.AntennaCycleInterval,
		JournalTimeout:       t.LogGuardTimeout,
	}, reader.WithLogger(logger), reader.WithJournal(g))
	if err := driver.Start(ctx); err != nil {
		logger.Warn("reader not ready at boot, supervisor will retry", zap.Error(err))
	}

	door := controller.New(hw.NewRelay(logger), hw.NewBuzzer(logger), controller.Config{
		UnlockDuration: t.UnlockDuration,
		Cooldown:       t.UnlockCooldown,
		JournalTimeout: t.RealtimeGuardTimeout,
	}, controller.WithLogger(logger), controller.WithJournal(g))

	loop := service.NewRealtimeLoop(service.RealtimeConfig{
		Reader:     driver,
		Exit:       exitsensor.New(exitIn, t.ExitDebounce, t.ExitCooldown, time.Now),
		Bus:        bus,
		Controller: door,
		Tick:       t.Tick,
	}, logger)
	loop.Start(ctx)
	defer loop.Stop()

	// Best-effort side.
	commands := service.NewCommandService(g, bus, cfg.ModuleID, service.CommandTimeouts{
		Default: t.LogGuardTimeout,
		Bulk:    t.BulkGuardTimeout,
	}, logger)
	status := service.NewStatusService(g, driver, door, bus, service.StatusConfig{
		ModuleID:        cfg.ModuleID,
		SnapshotTimeout: t.SnapshotGuardTimeout,
		BulkTimeout:     t.BulkGuardTimeout,
	}, logger)

	pruner := service.NewLogPruner(g, service.PrunerConfig{
		RetentionDays: cfg.LogRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
		GuardTimeout:  t.BulkGuardTimeout,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	reporter := service.NewHeartbeatReporter(status, service.ReporterConfig{
		ServerURL:       cfg.ServerURL,
		ModuleID:        cfg.ModuleID,
		FirmwareVersion: cfg.FirmwareVersion,
		Interval:        t.HeartbeatInterval,
	}, logger)
	reporter.Start(ctx)
	defer reporter.Stop()

	errCh := make(chan error, 2)

	if cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger:    logger,
			Addr:      cfg.HTTPAddr,
			Commands:  commands,
			Status:    status,
			RateLimit: cfg.CommandRateLimit,
			Burst:     cfg.CommandBurst,
		})
		go func() {
			logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.GRPCAddr != "" {
		rpc := grpcapi.NewServer(grpcapi.Dependencies{
			Logger:    logger,
			Addr:      cfg.GRPCAddr,
			Commands:  commands,
			RateLimit: cfg.CommandRateLimit,
			Burst:     cfg.CommandBurst,
		})
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
			if err := rpc.Start(); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
		defer rpc.Stop()
	}

	if cfg.MQTT.Broker != "" {
		if client := startMQTT(cfg, commands, logger); client != nil {
			defer client.Disconnect()
		}
	}

	if opts.Simulate {
		script := &hw.Script{Reader: simReader, Exit: exitIn, Logger: logger}
		go func() {
			if err := script.Run(ctx, cmd.InOrStdin()); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("simulation input ended", zap.Error(err))
			}
		}()
	}

	logger.Info("controller running",
		zap.String("module_id", cfg.ModuleID),
		zap.String("db", cfg.DBPath),
		zap.Bool("ephemeral", opts.Ephemeral),
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Controller running. Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		logger.Error("listener failed", zap.Error(err))
		return err
	}
}

// boot checks partition counts against the stored keys and journals the
// start. Neither step blocks startup.
func boot(ctx context.Context, g *guard.Guard, cfg config.Config, logger *zap.Logger) {
	err := g.Do(ctx, cfg.Timing.BulkGuardTimeout, func(h *guard.Handle) error {
		_, err := h.VerifyCounts()
		return err
	})
	if err != nil {
		logger.Warn("boot count verification failed", zap.Error(err))
	}
	_ = g.Log(ctx, cfg.Timing.LogGuardTimeout, types.LogSystemBoot, "", cfg.FirmwareVersion)
}

// startMQTT connects the command bridge. A broker that cannot be reached
// leaves the controller running without it.
func startMQTT(cfg config.Config, commands *service.CommandService, logger *zap.Logger) *mqttcmd.Client {
	client, err := mqttcmd.NewClient(mqttcmd.ClientConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, logger)
	if err != nil {
		logger.Error("mqtt unavailable", zap.Error(err))
		return nil
	}

	bridge := mqttcmd.NewBridge(client, commands, mqttcmd.BridgeConfig{
		TopicPrefix: cfg.MQTT.TopicPrefix,
		ModuleID:    cfg.ModuleID,
		QoS:         1,
		Timeout:     cfg.Timing.BulkGuardTimeout + time.Second,
	}, logger)
	if err := bridge.Start(); err != nil {
		logger.Error("mqtt subscribe failed", zap.Error(err))
		client.Disconnect()
		return nil
	}
	return client
}
