// Command server boots the plugin host: it opens the database pool,
// runs core migrations, connects the event bus and cache, builds the
// access-control and authentication layers, boots every registered
// plugin in dependency order, and serves HTTP until an interrupt
// signal triggers a graceful shutdown.
//
// Grounded on the teacher's cmd/main.go: same ordering (DB connect →
// migrate → cache → event source → router → listen → signal-wait →
// graceful shutdown), adapted from StreamSpace's fixed service set to
// this host's dynamic plugin lifecycle.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/corehost/platform/internal/access"
	"github.com/corehost/platform/internal/auth"
	"github.com/corehost/platform/internal/cache"
	"github.com/corehost/platform/internal/config"
	"github.com/corehost/platform/internal/db"
	"github.com/corehost/platform/internal/dbproxy"
	"github.com/corehost/platform/internal/eventbus"
	"github.com/corehost/platform/internal/httpapi"
	"github.com/corehost/platform/internal/logger"
	"github.com/corehost/platform/internal/plugins"
)

func main() {
	log := logger.Root()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Msg("connecting to database")
	database, err := db.New(db.Config{
		DatabaseURL: cfg.DatabaseURL,
		Host:        cfg.DBHost,
		Port:        cfg.DBPort,
		User:        cfg.DBUser,
		Password:    cfg.DBPassword,
		DBName:      cfg.DBName,
		SSLMode:     cfg.DBSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	log.Info().Msg("running core migrations")
	if err := database.Migrate(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	cancelBoot()

	redisCache, err := cache.New(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache")
	}
	defer redisCache.Close()

	bus, err := eventbus.New(eventbus.Config{
		URL:      cfg.BrokerURL,
		User:     cfg.BrokerUser,
		Password: cfg.BrokerPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event bus")
	}
	defer bus.Shutdown()

	proxy := dbproxy.New(database.DB())

	users := access.NewUserRepo(database.DB(), bus)
	roles := access.NewRoleRepo(database.DB())
	teams := access.NewTeamRepo(database.DB())
	applications := access.NewApplicationRepo(database.DB())
	rules := access.NewRuleRepo(database.DB())
	onboarding := access.NewOnboardingRepo(database.DB(), users, roles)
	evaluator := access.NewEvaluator(roles, applications, teams, redisCache)

	rolesCtx, cancelRoles := context.WithTimeout(context.Background(), 10*time.Second)
	if err := roles.EnsureSystemRoles(rolesCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to seed system roles")
	}
	cancelRoles()

	serviceTokens, err := auth.NewServiceTokenIssuer(cfg.ServiceTokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service token issuer")
	}
	sessions := auth.NewSessionStore(database.DB())
	authenticator := auth.NewAuthenticator(serviceTokens, applications, evaluator, auth.NewSessionStrategy(sessions))

	manager := plugins.NewManager(database.DB(), proxy, bus, rules, roles, evaluator)
	manager.RegisterBuiltins()

	pluginManifests := plugins.NewPluginRepo(database.DB())

	router := httpapi.New(httpapi.Deps{
		Authenticator:  authenticator,
		ServiceIssuer:  serviceTokens,
		Sessions:       sessions,
		Users:          users,
		Roles:          roles,
		Teams:          teams,
		Applications:   applications,
		Onboarding:     onboarding,
		Evaluator:      evaluator,
		Plugins:        pluginManifests,
		OpenAPISources: manager.OpenAPISources(),
	})

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	if err := httpapi.RegisterSignalBridge(appCtx, bus, router); err != nil {
		log.Warn().Err(err).Msg("signals websocket bridge disabled (broker unavailable)")
	}

	if err := manager.Boot(appCtx, router); err != nil {
		log.Fatal().Err(err).Msg("plugin boot failed")
	}

	maintenance := cron.New()
	if _, err := maintenance.AddFunc("@every 60s", func() {
		evaluator.InvalidateAnonymousRules()
	}); err != nil {
		log.Warn().Err(err).Msg("failed to schedule anonymous-rule cache refresh")
	}
	maintenance.Start()
	defer maintenance.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("platform listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server did not shut down cleanly")
	}

	// Process shutdown is not plugin uninstall: installed plugins and
	// their schemas must survive a restart. No HTTP route calls
	// Uninstall; it runs only when code calls Manager.Uninstall directly.
	// bus/cache/database are closed by the deferred calls above.
	log.Info().Msg("shutdown complete")
}
