package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lanread/internal/appender"
	"lanread/internal/config"
	"lanread/internal/database"
	"lanread/internal/events"
	"lanread/internal/export"
	"lanread/internal/logging"
	"lanread/internal/metrics"
	"lanread/internal/models"
	"lanread/internal/repository"
	"lanread/internal/resolver"
	"lanread/internal/session"
	"lanread/internal/worker"
	"lanread/internal/workspace"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml (default configs/config.yaml or $CONFIG_PATH)")
	exportMode := flag.String("export", "", "write an XLSX export and exit: annotations | failed")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("Library database opened")

	if *exportMode != "" {
		return runExport(cfg, db, &logger, *exportMode)
	}

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	sessions := session.NewManager(eventBus, baseLogger)

	client := workspace.NewClient(cfg.Workspace, sessions, baseLogger)
	client.OnUnauthorized(sessions.Invalidate)

	cache := buildMappingCache(cfg, baseLogger)
	pageResolver := resolver.New(db, client, cache, baseLogger)
	contentAppender := appender.New(client)

	processor := worker.NewProcessor(db, pageResolver, contentAppender, sessions, eventBus, worker.Options{
		Debounce:     cfg.Sync.DebounceDuration(),
		MaxRetries:   cfg.Sync.MaxRetries,
		UnknownDelay: cfg.Sync.UnknownDelayDuration(),
	}, baseLogger)
	sessions.OnReady(processor.NotifyRemoteReady)

	eventBus.Subscribe(events.EventCredentialExpired, func(*events.Event) error {
		logger.Warn().Msg("Workspace credential expired, reconnect required")
		return nil
	})
	eventBus.Subscribe(events.EventSyncConfigured, func(*events.Event) error {
		processor.TriggerNow()
		return nil
	})
	eventBus.Subscribe(events.EventWorkspaceDisconnected, func(*events.Event) error {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cache.Clear(cctx); err != nil {
			logger.Error().Err(err).Msg("Failed to clear mapping cache")
		}
		return db.ClearSyncConfig(cctx)
	})

	go processor.Run(ctx)

	// Installing the configured token fires NotifyRemoteReady and starts
	// the first drain.
	if cfg.Workspace.Token != "" {
		sessions.SetToken(&oauth2.Token{AccessToken: cfg.Workspace.Token})
	} else {
		logger.Warn().Msg("No workspace token configured, sync stays idle until one is provided")
	}

	// Needs the credential installed above when it has to provision the
	// annotation database remotely.
	if err := bootstrapSyncConfig(ctx, cfg, db, client, eventBus, &logger); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, baseLogger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, sessions, &logger)
	}

	// The reader app writes annotations into the same store from its own
	// process, so re-check the queue periodically even without an in-process
	// enqueue signal.
	go retriggerLoop(ctx, processor, cfg.Sync.RecheckIntervalDuration())

	<-ctx.Done()
	return nil
}

const defaultContainerTitle = "Reading Annotations"

// bootstrapSyncConfig establishes the durable sync configuration on first
// run. With a configured database id it is stored as-is; with only a root
// page id the annotation database is created remotely under it. A remote
// provisioning failure leaves sync unconfigured rather than aborting the
// daemon.
func bootstrapSyncConfig(ctx context.Context, cfg *config.Config, db *database.DB, client *workspace.Client, bus *events.EventBus, logger *zerolog.Logger) error {
	existing, err := db.GetSyncConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	sc := &models.SyncConfig{
		DatabaseID:    cfg.Workspace.DatabaseID,
		RootPageID:    cfg.Workspace.RootPageID,
		WorkspaceName: cfg.Workspace.WorkspaceName,
	}
	if sc.DatabaseID == "" {
		if sc.RootPageID == "" {
			return nil
		}
		title := sc.WorkspaceName
		if title == "" {
			title = defaultContainerTitle
		}
		created, err := client.CreateContainer(ctx, sc.RootPageID, title, annotationSchema())
		if err != nil {
			logger.Warn().Err(err).Str("root_page_id", sc.RootPageID).Msg("Failed to provision annotation database, sync stays idle")
			return nil
		}
		sc.DatabaseID = created.ID
		logger.Info().Str("database_id", sc.DatabaseID).Msg("Annotation database created")
	}

	if err := db.SaveSyncConfig(ctx, sc); err != nil {
		return err
	}
	logger.Info().Str("workspace", sc.WorkspaceName).Str("database_id", sc.DatabaseID).Msg("Workspace connection configured")
	return bus.PublishJSON(events.EventSyncConfigured, sc)
}

// annotationSchema is the property schema of the per-book container: a title
// plus the rich-text fields the resolver writes on every card.
func annotationSchema() map[string]interface{} {
	return map[string]interface{}{
		"Name":                  map[string]interface{}{"title": map[string]interface{}{}},
		resolver.BookIDProperty: map[string]interface{}{"rich_text": map[string]interface{}{}},
		"Author":                map[string]interface{}{"rich_text": map[string]interface{}{}},
	}
}

func buildMappingCache(cfg *config.Config, logger *zerolog.Logger) repository.MappingCache {
	ttl := time.Duration(models.DefaultMappingCacheTTL) * time.Second
	memory := repository.NewMemoryMappingCache(ttl)
	if !cfg.Redis.Enabled {
		return memory
	}
	client := repository.NewRedisClient(cfg.Redis)
	primary := repository.NewRedisMappingCache(client, ttl)
	return repository.NewFailoverMappingCache(primary, memory, logger)
}

func serveMetrics(port int, sessions *session.Manager, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Admin surface for the reader app's "disconnect workspace" action:
	// drops the credential and wipes mappings plus sync config.
	mux.HandleFunc("/sync/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sessions.Disconnect()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("disconnected"))
	})
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics endpoint failed")
	}
}

func retriggerLoop(ctx context.Context, processor *worker.Processor, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processor.NotifyEnqueued()
		}
	}
}

func runExport(cfg *config.Config, db *database.DB, logger *zerolog.Logger, mode string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := cfg.Export.Path
	if dir == "" {
		dir = "exports"
	}

	switch mode {
	case "annotations":
		annotations, err := db.GetAnnotations(ctx)
		if err != nil {
			return err
		}
		path, err := export.WriteAnnotationsXLSX(dir, annotations)
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Int("count", len(annotations)).Msg("Annotations exported")
	case "failed":
		tasks, err := db.GetFailedTasks(ctx)
		if err != nil {
			return err
		}
		path, err := export.WriteFailedTasksXLSX(dir, tasks)
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Int("count", len(tasks)).Msg("Failed tasks exported")
	default:
		return fmt.Errorf("unknown export mode: %s", mode)
	}
	return nil
}
