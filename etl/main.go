package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vberdnik/marketetl/internal/cleaning"
	"github.com/vberdnik/marketetl/internal/config"
	"github.com/vberdnik/marketetl/internal/dedupe"
	"github.com/vberdnik/marketetl/internal/extract"
	"github.com/vberdnik/marketetl/internal/logger"
	"github.com/vberdnik/marketetl/internal/models"
	"github.com/vberdnik/marketetl/internal/pipeline"
	"github.com/vberdnik/marketetl/internal/rejects"
	"github.com/vberdnik/marketetl/internal/search"
	"github.com/vberdnik/marketetl/internal/source"
	"github.com/vberdnik/marketetl/internal/warehouse"
)

func main() {
	log := logger.New("etl")
	cfg, err := config.LoadPipeline()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	stage := models.StageLoad
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "extract":
			stage = models.StageExtract
		case "clean":
			stage = models.StageClean
		case "load", "all":
			stage = models.StageLoad
		default:
			log.Error("unknown stage", slog.String("stage", os.Args[1]))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := warehouse.Connect(ctx, cfg.DSN)
	if err != nil {
		log.Error("connect warehouse", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()

	srcClient := source.New(source.Config{
		BaseURL:             cfg.BaseURL,
		APIToken:            cfg.APIToken,
		PageLimit:           cfg.PageLimit,
		RequestTimeout:      cfg.RequestTimeout,
		MaxElapsed:          cfg.MaxElapsed,
		RatePerSecond:       cfg.RatePerSecond,
		BackoffBase:         cfg.BackoffBase,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		MaxTransientRetries: cfg.MaxTransientRetries,
	}, log)

	extractor := extract.New(srcClient, extract.Config{
		MaxPages:        cfg.MaxPages,
		NewsWindow:      cfg.NewsWindow,
		NewsSymbolBatch: cfg.NewsSymbolBatch,
		NewsSymbolLimit: cfg.NewsSymbolLimit,
	}, log)

	var rejectSink cleaning.RejectRecorder
	if len(cfg.KafkaBrokers) > 0 {
		sink := rejects.NewSink(cfg.KafkaBrokers, cfg.RejectsTopic, log)
		defer sink.Close()
		rejectSink = sink
	}
	cleaner := cleaning.New(rejectSink, log)

	loader := warehouse.NewLoader(pool, cfg.BatchSize, cfg.BatchRetries, log)
	recorder := warehouse.NewRecorder(pool, log)

	// Audit entries for every stage land in the warehouse, so the tables
	// must exist even for an extract-only invocation.
	if err := loader.EnsureTables(ctx); err != nil {
		log.Error("ensure warehouse tables", slog.Any("err", err))
		os.Exit(1)
	}

	deps := pipeline.Deps{
		Extractor: extractor,
		Cleaner:   cleaner,
		Loader:    loader,
		Audit:     recorder,
		Metrics:   recorder,
		Log:       log,
	}

	if cfg.ElasticsearchAddr != "" {
		indexer, err := search.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		deps.Indexer = indexer
		deps.Articles = dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)
	}

	runner := pipeline.NewRunner(deps)
	run := pipeline.NewRunContext()

	log.Info("pipeline starting",
		slog.String("run_id", run.RunID),
		slog.String("through", stage),
	)

	status := runner.Run(ctx, run, stage)

	log.Info("pipeline finished",
		slog.String("run_id", run.RunID),
		slog.String("status", status.String()),
		slog.Int("pages", run.Pages),
		slog.Duration("elapsed", time.Since(run.StartedAt)),
	)

	os.Exit(int(status))
}
