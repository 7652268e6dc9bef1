package cmd

import (
	"log/slog"

	"github.com/calepin/calepin/internal/config"
	"github.com/calepin/calepin/internal/embed"
	"github.com/calepin/calepin/internal/logging"
	"github.com/calepin/calepin/internal/search"
	"github.com/calepin/calepin/internal/store"
	"github.com/calepin/calepin/internal/vector"
	"github.com/calepin/calepin/internal/worker"
)

// app bundles the wired subsystems every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	dirLock  *store.DirLock
	db       *store.DB
	lexical  *store.LexicalIndex
	cache    *vector.Cache
	embedder embed.Embedder
	queues   *worker.Queues
	engine   *search.Engine

	logCleanup func()
}

// openApp loads config, sets up logging, and opens every store. Callers
// must Close.
func openApp() (*app, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath(dir), dir)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:     cfg.Log.Level,
		FilePath:  cfg.Log.FilePath,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		MaxFiles:  cfg.Log.MaxFiles,
	}
	if flagDebug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, logCleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	// One process per data dir: bleve's bolt store takes an exclusive file
	// lock, and concurrent snapshot writers would lose updates.
	dirLock, err := store.LockDataDir(cfg.DataDir)
	if err != nil {
		logCleanup()
		return nil, err
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		_ = dirLock.Unlock()
		logCleanup()
		return nil, err
	}
	lexical, err := store.NewLexicalIndex(cfg.LexicalIndexPath(), logger)
	if err != nil {
		_ = db.Close()
		_ = dirLock.Unlock()
		logCleanup()
		return nil, err
	}

	params := vector.Params{
		Dim:       cfg.Embeddings.Dimensions,
		NList:     cfg.Index.NList,
		NProbe:    cfg.Index.NProbe,
		Normalize: cfg.Index.Normalize,
	}
	cache, err := vector.NewCache(cfg.Index.CacheSize, params, db)
	if err != nil {
		_ = lexical.Close()
		_ = db.Close()
		_ = dirLock.Unlock()
		logCleanup()
		return nil, err
	}

	var embedder embed.Embedder
	if flagOffline {
		embedder = embed.NewStaticEmbedder(cfg.Embeddings.Dimensions)
	} else {
		embedder = embed.NewClient(embed.ClientConfig{
			URL:        cfg.Embeddings.URL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    cfg.Embeddings.Timeout,
			MaxRetries: cfg.Embeddings.MaxRetries,
		})
	}

	queues := worker.NewQueues(cfg.Workers.QueueDepth)
	engine := search.NewEngine(db, lexical, cache, embedder, queues, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		dirLock:    dirLock,
		db:         db,
		lexical:    lexical,
		cache:      cache,
		embedder:   embedder,
		queues:     queues,
		engine:     engine,
		logCleanup: logCleanup,
	}, nil
}

// Close releases every resource in reverse open order.
func (a *app) Close() {
	_ = a.embedder.Close()
	_ = a.lexical.Close()
	_ = a.db.Close()
	_ = a.dirLock.Unlock()
	a.logCleanup()
}
