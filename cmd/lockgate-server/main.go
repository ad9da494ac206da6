package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/lockgate/internal/config"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/db"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/dedup"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/identity"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/notify"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/policy"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/service"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/lockgate/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/logging"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/lockgate/internal/ttlock"
)

// Version is provided at compile time
var Version = "dev"

func main() {
	app := kingpin.New("lockgate-server", "Access event processing engine for cloud smart locks")
	app.Version(Version)

	envFile := app.Flag("env-file", "Optional dotenv file loaded before reading LOCKGATE_* variables").
		Default(".env").String()

	serveCmd := app.Command("serve", "Run the webhook, bridge hub, poller and pruner").Default()
	migrateCmd := app.Command("migrate", "Apply database migrations and exit")
	seedCmd := app.Command("seed", "Upsert zones, users and locks from a YAML fixture")
	seedFile := seedCmd.Flag("file", "Seed YAML file (built-in dev fixture when empty)").String()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*envFile)
	app.FatalIfError(err, "config")

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	app.FatalIfError(err, "logger")
	logger = logger.With(zap.String("service", "lockgate"), zap.String("version", Version))

	switch cmd {
	case serveCmd.FullCommand():
		err = serve(cfg, logger)
	case migrateCmd.FullCommand():
		err = migrate(cfg, logger)
	case seedCmd.FullCommand():
		err = seed(cfg, logger, *seedFile)
	}

	if err != nil {
		logger.Error("exiting", zap.String("command", cmd), zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func migrate(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	v, err := db.CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("path", cfg.DBPath), zap.Int("version", v))
	return nil
}

func seed(cfg config.Config, logger *zap.Logger, file string) error {
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if file == "" {
		file = cfg.SeedFile
	}
	return applySeed(ctx, sqlDB, logger, file)
}

func applySeed(ctx context.Context, sqlDB *sql.DB, logger *zap.Logger, file string) error {
	s := db.DefaultSeed()
	if file != "" {
		var err error
		if s, err = db.LoadSeedFile(file); err != nil {
			return err
		}
	}
	if err := db.SeedDev(ctx, sqlDB, s); err != nil {
		return err
	}
	logger.Info("seed applied",
		zap.String("file", file),
		zap.Int("zones", len(s.Zones)),
		zap.Int("users", len(s.Users)),
		zap.Int("locks", len(s.Locks)))
	return nil
}

func serve(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// DB
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.Env == "dev" {
		if err := applySeed(ctx, sqlDB, logger, cfg.SeedFile); err != nil {
			return fmt.Errorf("dev seed: %w", err)
		}
	}

	writer := db.NewWorker(sqlDB)
	defer writer.Close()

	directory := sqlite.NewDirectory(sqlDB)
	deviceStore := sqlite.NewDeviceStore(sqlDB, writer)
	recordStore := sqlite.NewAccessRecordStore(sqlDB, writer)
	auditStore := sqlite.NewAuditLogStore(writer)

	m := metrics.New()

	// Dedup state
	var dedupStore dedup.Store = dedup.NewMemoryStore()
	if cfg.RedisURL != "" {
		rdb, err := dedup.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		dedupStore = dedup.NewRedisStore(rdb)
		logger.Info("dedup backed by redis")
	}

	// Observers
	hub := notify.NewHub(logger.Named("bridge"), m.ObserversConnected)
	defer hub.Close()
	observers := []notify.Observer{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("kafka"))
		defer kp.Close()
		observers = append(observers, kp)
		logger.Info("decision stream enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	// Vendor cloud
	vendor := ttlock.NewClient(cfg.TTLock, logger.Named("ttlock"))
	var unlocker service.Unlocker
	if vendor.Configured() {
		unlocker = vendor
		go warmUp(ctx, vendor, logger)
	} else {
		logger.Warn("ttlock credentials not set; cloud unlock, polling and credential listing disabled")
	}
	if cfg.HasGateway && unlocker == nil {
		logger.Warn("gateway mode requested without vendor credentials; unlocks go through the bridge")
	}

	// Services
	dispatcher := service.NewDispatcher(recordStore, auditStore, notify.NewBroadcaster(observers...), unlocker,
		service.DispatcherConfig{
			HasGateway: cfg.HasGateway,
			Bridge:     notify.NewBroadcaster(hub),
			Timeout:    cfg.SideEffectTimeout,
		},
		logger.Named("dispatch"), m)

	engine := service.NewEngine(service.EngineDeps{
		Dedup:         dedup.New(dedupStore, cfg.RawDedupWindow, cfg.AuthSuppressWindow),
		Resolver:      identity.NewResolver(directory),
		Zones:         directory,
		Registry:      service.NewDeviceRegistry(deviceStore, auditStore, logger.Named("registry")),
		Policy:        policy.NewEvaluator(loc),
		Dispatcher:    dispatcher,
		LookupTimeout: cfg.LookupTimeout,
		Logger:        logger.Named("engine"),
		Metrics:       m,
	})

	pollCfg := service.PollerConfig{Interval: cfg.PollInterval, LockIDs: cfg.PollLockIDs}
	if !vendor.Configured() {
		pollCfg.Interval = 0
	}
	poller := service.NewPoller(vendor, engine, pollCfg, logger.Named("poller"), m)
	poller.Start(ctx)

	pruner := service.NewRecordPruner(recordStore, auditStore,
		service.RetentionFromDays(cfg.RecordRetentionDays, cfg.PruneIntervalHours),
		logger.Named("pruner"), m)
	pruner.Start(ctx)

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:      logger.Named("http"),
		Addr:        cfg.HTTPAddr,
		Engine:      engine,
		Credentials: vendor,
		Bridge:      hub,
		Metrics:     m.Handler(),
		CORSOrigins: cfg.CORSOrigins,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("gateway", cfg.HasGateway))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// gRPC health
	var health *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		health = grpcapi.NewServer(logger.Named("grpc"))
		go func() {
			if err := health.Serve(lis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
			}
		}()
		health.SetServing(true)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if health != nil {
		health.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	poller.Stop()
	pruner.Stop()
	if health != nil {
		health.Stop()
	}
	return nil
}

func warmUp(ctx context.Context, vendor *ttlock.Client, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := vendor.WarmUp(ctx); err != nil {
		logger.Warn("ttlock token warm-up failed", zap.Error(err))
		return
	}
	logger.Info("ttlock token ready")
}
