package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/adbwatch/adbwatch/internal/adb"
	"github.com/adbwatch/adbwatch/internal/config"
	"github.com/adbwatch/adbwatch/internal/dedup"
	"github.com/adbwatch/adbwatch/internal/domain"
	"github.com/adbwatch/adbwatch/internal/history"
	"github.com/adbwatch/adbwatch/internal/httpserver"
	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/monitor"
	"github.com/adbwatch/adbwatch/internal/notify"
	"github.com/adbwatch/adbwatch/internal/redis"
	redisstore "github.com/adbwatch/adbwatch/internal/store/redis"
	"github.com/adbwatch/adbwatch/internal/version"
)

const (
	rawLineCapacity = 1000
	recordCapacity  = 100
)

type App struct {
	cfg         *config.Manager
	logger      logger.Logger
	server      *httpserver.Server
	session     *monitor.Session
	redisClient *goredis.Client
}

func New() *App {
	cfgPath := config.Path()

	manager, err := config.NewManager(cfgPath)
	if err != nil {
		bootLog := logger.New("info", true)
		bootLog.Errorf("Failed to load configuration from %s: %v", cfgPath, err)
		os.Exit(1)
	}
	cfg := manager.Current()

	loggerClient := logger.New(cfg.General.LogLevel, cfg.Server.PrettyLog)
	loggerClient.Infof("Configuration loaded from %s", cfgPath)

	// Cooldown state lives in memory unless a Redis address is configured,
	// in which case several instances can share one dedup window.
	var store dedup.Store = dedup.NewMemory()
	var redisClient *goredis.Client
	if cfg.Dedup.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.Dedup.RedisAddr)
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:     cfg.Dedup.RedisAddr,
			Username: cfg.Dedup.RedisUsername,
			Password: cfg.Dedup.RedisPassword,
			DB:       cfg.Dedup.RedisDB,
		}, loggerClient)
		if err != nil {
			loggerClient.Errorf("Failed to connect to Redis: %v", err)
			os.Exit(1)
		}
		store = redisstore.NewCooldownStore(redisClient)
		loggerClient.Info("Redis cooldown store initialized")
	}

	records := history.NewRing[domain.LogRecord](recordCapacity)
	rawLines := history.NewRing[string](rawLineCapacity)
	hub := monitor.NewHub()
	dispatcher := notify.New(records, loggerClient)

	session := monitor.NewSession(
		manager,
		loggerClient,
		monitor.ADBFactory(loggerClient),
		store,
		dispatcher,
		rawLines,
		hub,
	)

	d := deps.Deps{
		Logger:    loggerClient,
		StartTime: time.Now(),
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.BuildDate,
		GoVersion: version.GoVersion,
		TimeNow:   time.Now,
		Config:    manager,
		Session:   session,
		RawLines:  rawLines,
		Records:   records,
		Hub:       hub,
		TestConnection: func(ctx context.Context, target string) error {
			client := adb.NewClient(target, loggerClient)
			if err := client.Connect(ctx); err != nil {
				return client.ForceReconnect(ctx)
			}
			return nil
		},
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         manager,
		logger:      loggerClient,
		server:      server,
		session:     session,
		redisClient: redisClient,
	}
}

func (a *App) Run() error {
	cfg := a.cfg.Current()
	a.logger.Infof("🚀 Starting adbwatch v%s on %s", version.Version, cfg.Server.Listen)
	a.logger.Infof("adbwatch %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Honor enable_watcher on boot; the connection attempt can block for a
	// while, so the HTTP surface comes up regardless.
	if cfg.General.EnableWatcher {
		go func() {
			if err := a.session.Start(""); err != nil {
				a.logger.Warnf("initial monitoring start failed: %v", err)
			}
		}()
	} else {
		a.logger.Info("watcher disabled in configuration, waiting for /api/start")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.session.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ adbwatch stopped cleanly")
	return nil
}
