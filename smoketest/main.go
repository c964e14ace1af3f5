// Command smoketest verifies connectivity to the warehouse and the optional
// search index before a pipeline run is scheduled.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/vberdnik/marketetl/internal/config"
	"github.com/vberdnik/marketetl/internal/logger"
	"github.com/vberdnik/marketetl/internal/search"
	"github.com/vberdnik/marketetl/internal/warehouse"
)

func main() {
	log := logger.New("smoketest")
	cfg, err := config.LoadPipeline()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := warehouse.Connect(ctx, cfg.DSN)
	if err != nil {
		log.Error("connect warehouse", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()

	var version string
	if err := pool.QueryRow(ctx, `SELECT version()`).Scan(&version); err != nil {
		log.Error("query warehouse version", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("warehouse reachable", slog.String("version", version))

	var auditRows int
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM etl_audit WHERE created_at > now() - interval '7 days'`,
	).Scan(&auditRows)
	if err != nil {
		log.Warn("audit table not readable yet", slog.Any("err", err))
	} else {
		log.Info("recent audit entries", slog.Int("rows", auditRows))
	}

	if cfg.ElasticsearchAddr != "" {
		es, err := search.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		if err := es.Ping(ctx); err != nil {
			log.Error("ping elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		log.Info("elasticsearch reachable", slog.String("index", cfg.ElasticsearchIndex))
	}

	log.Info("smoke test passed")
}
