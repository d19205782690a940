package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	domainblacklist "authguard-go/internal/domain/blacklist"
	domainlockout "authguard-go/internal/domain/lockout"
	domainreputation "authguard-go/internal/domain/reputation"
	domainsecurity "authguard-go/internal/domain/security"
	platformcache "authguard-go/internal/platform/cache"
	platformconfig "authguard-go/internal/platform/config"
	platformerrors "authguard-go/internal/platform/errors"
	platformlogging "authguard-go/internal/platform/logging"
	platformobservability "authguard-go/internal/platform/observability"
	platformstorage "authguard-go/internal/platform/storage"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	shutdownGrace          = 15 * time.Second
	retentionSweepInterval = time.Hour
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	store                 platformcache.Store
	journalDB             *gorm.DB
	journal               *platformstorage.EventJournal
	monitor               *domainsecurity.Monitor
	lockouts              *domainlockout.Manager
	blacklists            *domainblacklist.Registry
	reputation            *domainreputation.Tracker
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, the background loops and the staged shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap.state",
			"config/logger not initialised",
		)
	}
	if state.store == nil || state.monitor == nil ||
		state.lockouts == nil || state.blacklists == nil || state.reputation == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap.state",
			"defense services not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	defer func() {
		_ = logger.Close()
	}()

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag(platformlogging.TagBoot, "observability shutdown incomplete: %v", err)
			}
		}()
	}

	defer closeResources(state)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	startServices(state, group, groupCtx)

	logger.InfoTag(platformlogging.TagBoot, "authentication defense services running [cache driver %s]", config.Cache.Driver)

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag(platformlogging.TagBoot, "shutdown complete")
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag(platformlogging.TagBoot, "initialisation sequence")
	for _, step := range steps {
		logger.InfoTag(platformlogging.TagBoot, "  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap.execute",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "cache:connect-store",
			Title:     "Connect shared cache store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   connectStoreStep,
		},
		{
			ID:        "storage:open-journal",
			Title:     "Open security-event journal",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   openJournalStep,
		},
		{
			ID:        "security:init-monitor",
			Title:     "Initialise security monitor",
			DependsOn: []string{"logging:init-provider", "storage:open-journal"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initMonitorStep,
		},
		{
			ID:        "domain:init-services",
			Title:     "Initialise defense services",
			DependsOn: []string{"cache:connect-store", "security:init-monitor"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initDomainServicesStep,
		},
		{
			ID:        "security:subscribe-alert-log",
			Title:     "Subscribe alert log consumer",
			DependsOn: []string{"security:init-monitor"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   subscribeAlertLogStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	loader := platformconfig.NewLoader().WithDotEnv(true)
	if path := os.Getenv("AUTHGUARD_CONFIG"); path != "" {
		loader = loader.WithSource(path)
	}

	config, err := loader.Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = config
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	logger.InfoTag(platformlogging.TagBoot, "logging ready [%s]", state.config.Log.Level)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: state.config.Observability.Enabled,
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func connectStoreStep(ctx context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"cache:connect-store",
			"config/logger not initialised",
		)
	}

	storeCfg := buildStoreConfig(state.config)
	store, err := platformcache.New(storeCfg, state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "cache:connect-store", "failed to build cache store", err)
	}
	state.store = store

	if err := store.Connect(ctx); err != nil {
		failover := storeCfg.Failover != nil && storeCfg.Failover.Enabled
		if !failover {
			return platformerrors.Wrap(
				platformerrors.KindStorageUnavailable,
				"cache:connect-store",
				"failed to connect cache store",
				err,
			)
		}
		state.logger.WarnTag(platformlogging.TagBoot, "shared cache unreachable at startup, continuing on fallback")
	}
	return nil
}

func buildStoreConfig(config *platformconfig.Config) platformcache.Config {
	out := platformcache.Config{Driver: config.Cache.Driver}
	if config.Cache.Driver == platformcache.DriverRedis {
		out.Redis = &platformcache.RedisConfig{
			Addr:     config.Cache.Redis.Addr,
			Username: config.Cache.Redis.Username,
			Password: config.Cache.Redis.Password,
			DB:       config.Cache.Redis.DB,
			Prefix:   config.Cache.Redis.Prefix,
		}
		out.Failover = &platformcache.FailoverConfig{
			Enabled:           config.Cache.Failover.Enabled,
			ReconnectInterval: config.Cache.Failover.ReconnectInterval(),
		}
	}
	if config.Cache.Memory.CleanupMs > 0 {
		out.Memory = &platformcache.MemoryConfig{
			CleanupInterval: config.Cache.Memory.CleanupInterval(),
		}
	}
	return out
}

func openJournalStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"storage:open-journal",
			"config/logger not initialised",
		)
	}

	if !state.config.Security.Journal.Enabled {
		state.logger.InfoTag(platformlogging.TagJournal, "security-event journal disabled")
		return nil
	}

	db, err := platformstorage.Open(state.config.Security.Journal.Path)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:open-journal", "failed to open security-event journal", err)
	}
	state.journalDB = db
	state.journal = platformstorage.NewEventJournal(db)
	state.logger.InfoTag(platformlogging.TagJournal, "security-event journal ready at %s", state.config.Security.Journal.Path)
	return nil
}

func initMonitorStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"security:init-monitor",
			"config/logger not initialised",
		)
	}

	opts := domainsecurity.Options{
		Logger:              state.logger,
		BruteForceThreshold: state.config.Security.BruteForceThreshold,
		BruteForceWindow:    state.config.Security.BruteForceWindow(),
		RateLimitThreshold:  state.config.Security.RateLimitThreshold,
		AlertCooldown:       state.config.Security.AlertCooldown(),
	}
	if state.journal != nil {
		opts.Journal = state.journal
	}

	monitor, err := domainsecurity.NewMonitor(opts)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "security:init-monitor", "failed to create security monitor", err)
	}
	state.monitor = monitor
	return nil
}

func initDomainServicesStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil || state.store == nil || state.monitor == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"domain:init-services",
			"store/monitor not initialised",
		)
	}
	config := state.config

	lockouts, err := domainlockout.NewManager(domainlockout.Options{
		Store:         state.store,
		Logger:        state.logger,
		Events:        state.monitor,
		MaxAttempts:   config.Lockout.MaxAttempts,
		Window:        config.Lockout.Window(),
		LockoutFor:    config.Lockout.LockoutDuration(),
		ManualLockFor: config.Lockout.ManualLockDuration(),
		DelaySchedule: config.Lockout.DelaySchedule(),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create lockout manager", err)
	}
	state.lockouts = lockouts

	var verifier *domainblacklist.Verifier
	if secret := config.Blacklist.Secret; secret != "" {
		verifier, err = domainblacklist.NewVerifier(secret, 0)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create token verifier", err)
		}
	} else {
		state.logger.WarnTag(platformlogging.TagToken, "no signing secret configured, token verification disabled")
	}

	blacklists, err := domainblacklist.NewRegistry(domainblacklist.Options{
		Store:      state.store,
		Logger:     state.logger,
		Events:     state.monitor,
		Verifier:   verifier,
		DefaultTTL: config.Blacklist.DefaultTTL(),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create revocation registry", err)
	}
	state.blacklists = blacklists

	reputation, err := domainreputation.NewTracker(domainreputation.Options{
		Store:             state.store,
		Logger:            state.logger,
		Events:            state.monitor,
		HistoryLimit:      config.Reputation.HistoryLimit,
		StaleAfter:        config.Reputation.StaleAfter(),
		VolatileWindow:    config.Reputation.VolatileWindow(),
		VolatileThreshold: config.Reputation.VolatileThreshold,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "domain:init-services", "failed to create reputation tracker", err)
	}
	state.reputation = reputation
	return nil
}

func subscribeAlertLogStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.monitor == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"security:subscribe-alert-log",
			"monitor not initialised",
		)
	}

	logger := state.logger
	err := state.monitor.SubscribeAsync(func(alert domainsecurity.Alert) {
		logger.InfoTag(platformlogging.TagSecurity, "alert delivered [%s/%s] %s", alert.Severity, alert.Type, alert.Description)
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "security:subscribe-alert-log", "failed to subscribe alert consumer", err)
	}
	return nil
}

// startServices launches the background loops. The monitor's async
// delivery workers are stopped when the group context ends; the journal
// sweeper enforces the retention window while the service runs.
func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) {
	g.Go(func() error {
		<-groupCtx.Done()
		state.monitor.Close()
		return nil
	})

	if state.journal != nil && state.config.Security.Journal.RetentionDays > 0 {
		g.Go(func() error {
			return runJournalRetention(groupCtx, state)
		})
	}
}

func runJournalRetention(ctx context.Context, state *appState) error {
	retention := time.Duration(state.config.Security.Journal.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dropped, err := state.journal.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				state.logger.WarnTag(platformlogging.TagJournal, "journal retention sweep failed: %v", err)
				continue
			}
			if dropped > 0 {
				state.logger.InfoTag(platformlogging.TagJournal, "journal retention dropped %d events", dropped)
			}
		}
	}
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag(platformlogging.TagBoot, "shutdown signal received (%v), draining services", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag(platformlogging.TagBoot, "service drain reported error: %v", err)
			return err
		}
		logger.InfoTag(platformlogging.TagBoot, "all services stopped")
	case <-time.After(shutdownGrace):
		logger.ErrorTag(platformlogging.TagBoot, "service drain timed out, forcing exit")
		return platformerrors.New(platformerrors.KindLifecycle, "bootstrap.shutdown", "service drain timed out")
	}
	return nil
}

// closeResources tears dependencies down in reverse order of their
// construction. The monitor goes first so no alert touches a closed
// store or journal.
func closeResources(state *appState) {
	logger := state.logger

	if state.monitor != nil {
		state.monitor.Close()
	}
	if state.store != nil {
		if err := state.store.Disconnect(); err != nil {
			logger.WarnTag(platformlogging.TagBoot, "cache store disconnect: %v", err)
		}
	}
	if state.journalDB != nil {
		if err := platformstorage.Close(state.journalDB); err != nil {
			logger.WarnTag(platformlogging.TagJournal, "journal close: %v", err)
		}
	}
}

// loadConfigAndLogger runs just the head of the init graph. Used by
// tests that need a configured environment without the full service.
func loadConfigAndLogger() (*platformconfig.Config, *platformlogging.Logger, error) {
	state := &appState{}

	var steps []initStep
	for _, step := range InitGraph() {
		if step.ID == "config:load" || step.ID == "logging:init-provider" {
			steps = append(steps, step)
		}
	}

	if err := executeInitSteps(context.Background(), steps, state); err != nil {
		return nil, nil, err
	}
	return state.config, state.logger, nil
}
