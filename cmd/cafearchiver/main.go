// Command cafearchiver runs the cafe archiving service: an HTTP API for
// submitting and inspecting jobs, plus a background scheduler that executes
// queued jobs one at a time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/api"
	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/browser"
	systemclock "github.com/mkweon/cafe-archiver/internal/clock/system"
	"github.com/mkweon/cafe-archiver/internal/config"
	"github.com/mkweon/cafe-archiver/internal/executor"
	"github.com/mkweon/cafe-archiver/internal/export"
	"github.com/mkweon/cafe-archiver/internal/extract"
	collysearch "github.com/mkweon/cafe-archiver/internal/fetch/colly"
	sha256hash "github.com/mkweon/cafe-archiver/internal/hash/sha256"
	uuidgen "github.com/mkweon/cafe-archiver/internal/id/uuid"
	"github.com/mkweon/cafe-archiver/internal/logging"
	memorypub "github.com/mkweon/cafe-archiver/internal/publisher/memory"
	pubsubpub "github.com/mkweon/cafe-archiver/internal/publisher/pubsub"
	"github.com/mkweon/cafe-archiver/internal/scheduler"
	"github.com/mkweon/cafe-archiver/internal/search"
	"github.com/mkweon/cafe-archiver/internal/sheets"
	"github.com/mkweon/cafe-archiver/internal/storage/memory"
	"github.com/mkweon/cafe-archiver/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "cafearchiver: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := systemclock.New()
	ids := uuidgen.New()
	hasher := sha256hash.New()

	var (
		jobs     archiver.JobStore
		posts    archiver.PostStore
		progress archiver.ProgressStore
	)
	if cfg.DB.DSN != "" {
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if jobs, err = postgres.NewJobStore(pool); err != nil {
			return err
		}
		if posts, err = postgres.NewPostStore(pool); err != nil {
			return err
		}
		if progress, err = postgres.NewProgressStore(pool); err != nil {
			return err
		}
		logger.Info("using postgres storage")
	} else {
		jobs = memory.NewJobStore()
		posts = memory.NewPostStore()
		progress = memory.NewProgressStore()
		logger.Warn("no database DSN configured, using in-memory storage")
	}

	cookies := make([]browser.SessionCookie, 0, len(cfg.Browser.Cookies))
	for _, c := range cfg.Browser.Cookies {
		cookies = append(cookies, browser.SessionCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}
	chrome, err := browser.NewChromedp(browser.Config{
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		MaxParallel:       cfg.Browser.MaxParallel,
		Cookies:           cookies,
	})
	if err != nil {
		return fmt.Errorf("init browser: %w", err)
	}
	defer chrome.Close()

	searchClient, err := collysearch.New(collysearch.Config{
		BaseURL:   cfg.Search.BaseURL,
		UserAgent: cfg.Browser.UserAgent,
		Cookie:    cfg.Search.Cookie,
		Timeout:   time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init search client: %w", err)
	}

	var sheetSink archiver.SheetSink
	if cfg.Sheet.WebhookURL != "" {
		sink, err := sheets.New(sheets.Config{
			WebhookURL: cfg.Sheet.WebhookURL,
			AuthToken:  cfg.Sheet.AuthToken,
			Timeout:    time.Duration(cfg.Sheet.TimeoutSeconds) * time.Second,
		}, logger.Named("sheets"))
		if err != nil {
			return fmt.Errorf("init sheet sink: %w", err)
		}
		sheetSink = sink
	} else {
		logger.Warn("no sheet webhook configured, sheet sync disabled")
	}

	var backup archiver.BackupStore
	if cfg.Backup.GCSBucket != "" {
		gcs, err := export.NewGCSStore(ctx, cfg.Backup.GCSBucket, logger.Named("export"))
		if err != nil {
			return fmt.Errorf("init gcs backup: %w", err)
		}
		defer gcs.Close()
		backup = gcs
	} else {
		local, err := export.NewJSONLStore(export.JSONLConfig{BaseDir: cfg.Backup.BaseDir}, clock)
		if err != nil {
			return fmt.Errorf("init backup store: %w", err)
		}
		backup = local
	}

	var publisher archiver.Publisher
	if cfg.PubSub.ProjectID != "" {
		ps, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		defer ps.Close()
		publisher = ps
	} else {
		publisher = memorypub.New()
	}

	pause := archiver.NewJitterPause(
		time.Duration(cfg.Archiver.PauseMinMs)*time.Millisecond,
		time.Duration(cfg.Archiver.PauseMaxMs)*time.Millisecond,
	)

	searchStage := search.New(searchClient, logger.Named("search"))
	extractStage := extract.New(chrome, extract.Config{}, logger.Named("extract"))

	exec := executor.New(
		jobs, posts, progress,
		searchStage, extractStage,
		sheetSink, backup, publisher,
		hasher, clock, ids, pause,
		executor.Config{Topic: cfg.PubSub.TopicName},
		logger.Named("executor"),
	)

	sched := scheduler.New(jobs, exec, clock, cfg.PollInterval(), logger.Named("scheduler"))
	go sched.Run(ctx)

	apiServer := api.NewServer(jobs, progress, ids, clock, api.Config{
		AuthEnabled:     cfg.Auth.Enabled,
		APIKey:          cfg.Auth.APIKey,
		RequestTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		DefaultMaxPosts: cfg.Archiver.DefaultMaxPosts,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
