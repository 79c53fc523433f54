package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ldap "github.com/xonoko/ldapauth"
	"github.com/xonoko/ldapauth/auth"
	"github.com/xonoko/ldapauth/config"
	"github.com/xonoko/ldapauth/httpauth"
	"github.com/xonoko/ldapauth/store"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("LDAPAUTH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid log_level %q: %v", cfg.LogLevel, err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := ldap.NewClient(cfg.Directory(), ldap.WithLogger(logger.Named("ldap")))
	if err != nil {
		logger.Fatal("invalid directory configuration", zap.Error(err))
	}

	var finder store.Finder
	if cfg.Auth.QueryDatasource {
		pool, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		finder = store.NewPostgresFinder(pool)

		if cfg.RedisAddr != "" && cfg.CacheTTL > 0 {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer func() { _ = rdb.Close() }()

			pingCtx, cancel := context.WithTimeout(ctx, time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				logger.Warn("redis unavailable, record cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			} else {
				finder = store.NewCachedFinder(finder, rdb, cfg.CacheTTL, logger.Named("cache"))
			}
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	authenticator, err := auth.New(auth.FromClient(client), finder, cfg.Authenticator(),
		auth.WithLogger(logger.Named("auth")),
		auth.WithObserver(httpauth.NewMetrics(reg)),
	)
	if err != nil {
		logger.Fatal("invalid authenticator configuration", zap.Error(err))
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpauth.NewRouter(authenticator, httpauth.RouterConfig{
			Gatherer: reg,
			Logger:   logger.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("addr", cfg.Server.Addr), zap.String("ldap_host", cfg.LDAP.Host))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
