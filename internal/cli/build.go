package cli

import (
	"fmt"
	"log/slog"

	"metrika-etl/internal/archive"
	"metrika-etl/internal/catalog"
	"metrika-etl/internal/clickhouse"
	"metrika-etl/internal/config"
	"metrika-etl/internal/domain"
	"metrika-etl/internal/metrika"
	"metrika-etl/internal/service/export"
	"metrika-etl/internal/service/load"
	"metrika-etl/internal/service/pipeline"
	"metrika-etl/internal/service/probe"
)

// app bundles the constructed components for one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	api     *metrika.Client
	dest    *clickhouse.Client
	orch    *pipeline.Orchestrator
	store   *pipeline.RunStore
}

// buildApp constructs the full pipeline from validated configuration.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	cat := catalog.Default()

	api := metrika.NewClient(metrika.Config{
		BaseURL:        cfg.APIBaseURL,
		Token:          cfg.Token,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	dest, err := clickhouse.NewClient(clickhouse.Config{
		Host:       cfg.CHHost,
		Port:       cfg.CHPort,
		Secure:     cfg.CHSecure,
		User:       cfg.CHUser,
		Password:   cfg.CHPassword,
		CACertPath: cfg.CHCACert,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	var archiver domain.PartArchiver
	if cfg.HasArchive() {
		archiver = archive.New(archive.Config{
			KeyID:    *cfg.ArchiveKeyID,
			Secret:   *cfg.ArchiveSecret,
			Endpoint: *cfg.ArchiveEndpoint,
			Region:   *cfg.ArchiveRegion,
			Bucket:   *cfg.ArchiveBucket,
			Prefix:   cfg.ArchivePrefix,
		}, logger)
	}

	sources := make([]domain.SourceKind, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		kind, ok := domain.ParseSourceKind(s)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", s)
		}
		sources = append(sources, kind)
	}

	orch := pipeline.New(pipeline.Params{
		Catalog: cat,
		Prober:  probe.New(api, cat, logger),
		Manager: export.NewManager(api, nil, logger),
		Downloader: export.NewDownloader(api, archiver, export.DownloaderConfig{
			Workers: cfg.PartWorkers,
			Retries: cfg.PartRetries,
		}, logger),
		Provisioner:  load.NewProvisioner(dest, logger),
		Loader:       load.NewBulkLoader(dest, cfg.InsertChunk, logger),
		Logger:       logger,
		CounterID:    cfg.CounterID,
		Sources:      sources,
		Database:     cfg.CHDatabase,
		TablePrefix:  cfg.TablePrefix,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		api:     api,
		dest:    dest,
		orch:    orch,
		store:   pipeline.NewRunStore(50),
	}, nil
}
