// Command calshare runs the event sharing server.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/calshare-go/internal/components/api"
	"github.com/MahdiBaghbani/calshare-go/internal/components/api/account"
	apievents "github.com/MahdiBaghbani/calshare-go/internal/components/api/events"
	apifriends "github.com/MahdiBaghbani/calshare-go/internal/components/api/friends"
	apiinbox "github.com/MahdiBaghbani/calshare-go/internal/components/api/inbox"
	"github.com/MahdiBaghbani/calshare-go/internal/components/api/pushws"
	"github.com/MahdiBaghbani/calshare-go/internal/components/apiservice"
	"github.com/MahdiBaghbani/calshare-go/internal/components/events"
	"github.com/MahdiBaghbani/calshare-go/internal/components/friends"
	"github.com/MahdiBaghbani/calshare-go/internal/components/identity"
	"github.com/MahdiBaghbani/calshare-go/internal/components/notifications"
	"github.com/MahdiBaghbani/calshare-go/internal/components/push"
	"github.com/MahdiBaghbani/calshare-go/internal/components/reminders"
	"github.com/MahdiBaghbani/calshare-go/internal/interceptors"
	_ "github.com/MahdiBaghbani/calshare-go/internal/interceptors/ratelimit"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/cache"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/cache/loader"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/config"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/calshare-go/internal/platform/store"
	_ "github.com/MahdiBaghbani/calshare-go/internal/platform/store/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory, json, sqlite, postgres, bolt (overrides config)")
	dataDir := flag.String("data-dir", "", "Data directory for file-backed stores (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	pushTransport := flag.String("push-transport", "", "Push transport: local or amqp (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	metricsEnabled := flag.String("metrics-enabled", "", "Expose Prometheus metrics: true or false (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:     listenAddr,
			StoreDriver:    storeDriver,
			DataDir:        dataDir,
			CacheDriver:    cacheDriver,
			PushTransport:  pushTransport,
			LoggingLevel:   loggingLevel,
			MetricsEnabled: metricsEnabled,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logutil.ParseLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	st, err := store.New(&store.DriverConfig{
		Driver:   cfg.Store.Driver,
		DataDir:  cfg.Store.DataDir,
		DSN:      cfg.Store.DSN,
		Replicas: cfg.Store.Replicas,
	})
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	if err := st.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}

	c, err := cache.NewFromConfig(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		logger.Error("failed to create cache", "driver", cfg.Cache.Driver, "error", err)
		os.Exit(1)
	}

	// closed in reverse order on shutdown
	closers := []io.Closer{st, c}

	// Identity
	dir := identity.NewDirectory(st, c, logger)
	userAuth := identity.NewUserAuth()
	sessions := identity.NewSessions(c, time.Duration(cfg.Server.SessionTTLSeconds)*time.Second)

	if len(cfg.Identity.SeedUsers) > 0 {
		seeded := make([]identity.SeededUser, 0, len(cfg.Identity.SeedUsers))
		for _, u := range cfg.Identity.SeedUsers {
			seeded = append(seeded, identity.SeededUser{Email: u.Email, Password: u.Password, FullName: u.FullName})
		}
		created, err := identity.NewBootstrap(dir, userAuth, logger).Run(ctx, seeded)
		if err != nil {
			logger.Error("failed to seed users", "error", err)
			os.Exit(1)
		}
		logger.Info("seeded users", "created", created, "configured", len(seeded))
	}

	// Push
	hub := push.NewHub(logger)
	closers = append(closers, hub)
	var publisher push.Publisher = hub
	if cfg.Push.Transport == "amqp" {
		transport, err := push.DialAMQP(push.AMQPConfig{
			URL:      cfg.Push.AMQPURL,
			Exchange: cfg.Push.Exchange,
			Queue:    cfg.Push.Queue,
		}, hub, logger)
		if err != nil {
			logger.Error("failed to connect push transport", "error", err)
			os.Exit(1)
		}
		if err := transport.Start(ctx); err != nil {
			logger.Error("failed to start push transport", "error", err)
			os.Exit(1)
		}
		closers = append(closers, transport)
		publisher = transport
	}

	var scheduler reminders.Scheduler
	if cfg.Reminders.Enabled {
		local := reminders.NewLocalScheduler(publisher, logger)
		closers = append(closers, local)
		scheduler = local
	}

	// Domain
	friendSvc := friends.New(st, logger)
	outbox := notifications.NewOutbox(st, logger)
	processor := notifications.NewProcessor(st, friendSvc, scheduler, cfg.Reminders.DefaultNotifyBeforeMinutes, logger)
	trash := notifications.NewTrash(st, logger)
	workflow := events.NewWorkflow(st, outbox, friendSvc, scheduler, events.NewSweeper(st, nil, logger), logger)

	apiSvc := apiservice.New(apiservice.Handlers{
		Health:  api.NewHealthHandler(map[string]api.HealthProbe{"store": api.StoreProbe(st)}, logger),
		Account: account.NewHandler(dir, userAuth, sessions, cfg.Mode == string(config.ModeStrict), auth.CurrentUser, logger),
		Events:  apievents.NewHandler(workflow, publisher, cfg.Reminders.DefaultNotifyBeforeMinutes, auth.CurrentUser, logger),
		Friends: apifriends.NewHandler(friendSvc, dir, outbox, publisher, auth.CurrentUser, logger),
		Inbox:   apiinbox.NewHandler(processor, trash, auth.CurrentUser, logger),
		Push:    pushws.NewHandler(hub, auth.CurrentUser, logger),
	}, logger, closers...)

	trustedProxies := realip.NewTrustedProxies(cfg.Server.TrustedProxies)
	chain, err := interceptors.Build(cfg.HTTP.Interceptors, interceptors.Deps{
		Counter:  c,
		ClientIP: trustedProxies.GetClientIPString,
		Log:      logger,
	})
	if err != nil {
		logger.Error("failed to build interceptors", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger, server.Options{
		Sessions:       sessions,
		Users:          dir,
		TrustedProxies: trustedProxies,
		Interceptors:   chain,
	}, apiSvc)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started, press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
