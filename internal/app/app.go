package app

import (
	"fmt"
	"time"

	"grocermap/internal/catalog"
	"grocermap/internal/config"
	"grocermap/internal/connectors"
	"grocermap/internal/embedding"
	"grocermap/internal/listener"
	"grocermap/internal/pipeline"
	"grocermap/internal/storage"
)

// App holds the wired services shared by the CLI and the listener daemon.
type App struct {
	Config config.Config
	Tables config.Tables
	DB     *storage.DB
	Loader *catalog.Loader
	Engine *pipeline.Engine
	Orders *pipeline.OrderService
}

// New opens the run log and wires catalog, embedder and order pipeline from cfg.
func New(cfg config.Config) (*App, error) {
	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	embedder, err := embedding.New(EmbeddingOptions(cfg))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	normalizer := catalog.NewNormalizer(tables.Aliases, tables.Blocklist)
	loader := catalog.NewLoader(normalizer, cfg.CatalogDir, cfg.SnapshotPath).WithMetadata(db)
	engine := pipeline.NewEngine(loader, embedder, MatchOptions(cfg, tables))

	var exporter *pipeline.Exporter
	if cfg.ExportDir != "" {
		exporter = pipeline.NewExporter(cfg.ExportDir, cfg.ExportFormat)
	}
	orders := pipeline.NewOrderService(pipeline.NewLineParser(tables.NoisePhrases), engine, exporter).
		WithRecorder(db).
		WithMailStore(db)

	return &App{Config: cfg, Tables: tables, DB: db, Loader: loader, Engine: engine, Orders: orders}, nil
}

func (a *App) Close() error { return a.DB.Close() }

// Fetcher builds the mail fetch service for provider.
func (a *App) Fetcher(provider string) (*connectors.FetchService, error) {
	conn, err := connectors.New(provider, a.Config)
	if err != nil {
		return nil, err
	}
	return connectors.NewFetchService(a.DB, a.Config.RawMailDir, conn), nil
}

// Listener builds the mail polling loop from the MAIL_LISTENER_* settings.
// Without auto export the listener records orders but writes no files.
func (a *App) Listener() (*listener.Service, error) {
	cfg := a.Config
	fetcher, err := a.Fetcher(cfg.MailListenerProvider)
	if err != nil {
		return nil, err
	}
	orders := a.Orders
	if !cfg.MailListenerAutoExport {
		orders = pipeline.NewOrderService(pipeline.NewLineParser(a.Tables.NoisePhrases), a.Engine, nil).
			WithRecorder(a.DB).
			WithMailStore(a.DB)
	}
	return listener.NewService(fetcher, orders, listener.Options{
		Provider:     cfg.MailListenerProvider,
		Label:        cfg.MailListenerLabel,
		Interval:     time.Duration(cfg.MailListenerIntervalSec) * time.Second,
		FetchMax:     cfg.MailListenerFetchMax,
		ProcessBatch: cfg.MailListenerProcessBatch,
	}), nil
}

func EmbeddingOptions(cfg config.Config) embedding.Options {
	return embedding.Options{
		Provider:     cfg.Embedder,
		BaseURL:      cfg.EmbeddingBaseURL,
		APIKey:       cfg.EmbeddingAPIKey,
		Model:        cfg.EmbeddingModel,
		BatchSize:    cfg.EmbeddingBatchSize,
		TimeoutMs:    cfg.EmbeddingTimeoutMs,
		RateLimitRPS: cfg.EmbeddingRateLimitRPS,
		MaxRetries:   cfg.EmbeddingMaxRetries,
	}
}

func MatchOptions(cfg config.Config, tables config.Tables) pipeline.MatchOptions {
	opts := pipeline.DefaultMatchOptions()
	opts.High = cfg.ConfidenceHigh
	opts.Medium = cfg.ConfidenceMedium
	opts.Low = cfg.ConfidenceLow
	opts.MinSimilarity = cfg.MinSimilarity
	opts.TopK = cfg.MaxCandidatesPerItem
	opts.GapWeight = cfg.GapBonusWeight
	opts.FoodCategories = tables.FoodCategories
	return opts
}
