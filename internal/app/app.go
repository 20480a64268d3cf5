// Package app wires the ledger components together and manages the
// lifecycle of the HTTP and gRPC servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpcapi "github.com/ghgledger/ghgledger/internal/api/grpc"
	httpapi "github.com/ghgledger/ghgledger/internal/api/http"
	"github.com/ghgledger/ghgledger/internal/cache"
	"github.com/ghgledger/ghgledger/internal/config"
	"github.com/ghgledger/ghgledger/internal/gas"
	"github.com/ghgledger/ghgledger/internal/ingest"
	"github.com/ghgledger/ghgledger/internal/observability"
	"github.com/ghgledger/ghgledger/internal/query"
	"github.com/ghgledger/ghgledger/internal/reference"
	"github.com/ghgledger/ghgledger/internal/server"
	"github.com/ghgledger/ghgledger/internal/storage"
	"github.com/ghgledger/ghgledger/internal/store"
)

// maintenanceInterval is how often idle stats and finished tasks are pruned.
const maintenanceInterval = time.Minute

// App owns every long-lived component of a ledger process.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store    *store.Store
	cache    cache.Cache
	trends   *query.TrendCache
	stats    *observability.OperationStats
	gases    *gas.Table
	engine   *query.Engine
	writer   *ingest.Writer
	pipeline *ingest.Pipeline
	tasks    *ingest.Tasks
	objects  storage.ObjectStorage
	archiver *ingest.Archiver

	shutdown   *server.ShutdownManager
	httpServer *http.Server
	httpAddr   net.Addr
	grpcServer *grpc.Server
	grpcAddr   net.Addr

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg and opens the store, cache and upload storage. Servers
// are not started until Start.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		gases:  gas.DefaultTable(),
		stats:  observability.NewOperationStats(10 * time.Minute),
	}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	var err error

	a.store, err = store.Open(a.cfg.Store.Path, store.Options{ReadPoolSize: a.cfg.Store.ReadPoolSize})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.logger.Info("store opened", zap.String("path", a.cfg.Store.Path))

	switch a.cfg.Cache.Type {
	case config.CacheRedis:
		a.cache, err = cache.NewRedis(cache.RedisOptions{URL: a.cfg.Cache.RedisURL})
	default:
		a.cache = cache.NewMemory(cache.MemoryOptions{
			Shards:          a.cfg.Cache.Shards,
			JanitorInterval: a.cfg.Cache.JanitorInterval,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.logger.Info("cache initialized", zap.String("type", a.cfg.Cache.Type))

	switch a.cfg.Storage.Type {
	case config.StorageLocal:
		a.objects, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case config.StorageS3:
		a.objects, err = storage.NewS3Storage(context.Background(), a.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Storage.S3.Region,
			Endpoint: a.cfg.Storage.S3.Endpoint,
			Prefix:   a.cfg.Storage.S3.Prefix,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if a.objects != nil {
		a.archiver = ingest.NewArchiver(a.objects, a.logger.Named("archive"))
		a.logger.Info("upload storage initialized", zap.String("type", a.cfg.Storage.Type))
	}

	a.trends = query.NewTrendCache(a.cache, a.cfg.Cache.KeyPrefix, a.cfg.Cache.TrendTTL, a.logger.Named("cache"))
	a.engine = query.NewEngine(a.store, a.gases, a.logger.Named("query"),
		query.WithTrendCache(a.trends),
		query.WithStats(a.stats))
	a.writer = ingest.NewWriter(a.store, a.logger.Named("writer"),
		ingest.WithInvalidator(a.trends),
		ingest.WithPrefixThreshold(a.cfg.Cache.PrefixInvalidationThreshold),
		ingest.WithWriterStats(a.stats))
	a.pipeline = ingest.NewPipeline(a.writer, a.cfg.Ingest.Workers, a.logger.Named("ingest"))
	a.tasks = ingest.NewTasks(a.pipeline, a.uploadArchiver(), a.cfg.Ingest.TaskRetention, a.logger.Named("tasks"))
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
	}, a.logger.Named("shutdown"))
	return nil
}

// uploadArchiver returns the archiver used for new uploads, nil unless
// archiving is enabled.
func (a *App) uploadArchiver() *ingest.Archiver {
	if !a.cfg.Ingest.ArchiveUploads {
		return nil
	}
	return a.archiver
}

// Handler returns the HTTP API handler, including shutdown tracking.
func (a *App) Handler() http.Handler {
	h := httpapi.NewHandler(httpapi.Config{
		Queries:        a.engine,
		Writes:         a.writer,
		Ingestor:       a.pipeline,
		Tasks:          a.tasks,
		Archiver:       a.uploadArchiver(),
		Stats:          a.stats,
		CacheStats:     a.trends.Stats,
		Health:         a.store.Ping,
		MaxUploadBytes: a.cfg.HTTP.MaxUploadBytes,
		Logger:         a.logger.Named("http"),
	})
	return a.shutdown.Middleware(h.Routes())
}

// Start starts the HTTP server, the gRPC server when enabled and the
// maintenance loop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.shutdown.Register("store", a.store)
	a.shutdown.Register("cache", a.cache)
	a.shutdown.Register("tasks", server.CloserFunc(func() error {
		waitCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return a.tasks.Wait(waitCtx)
	}))
	a.shutdown.Register("maintenance", server.CloserFunc(func() error {
		cancel()
		a.wg.Wait()
		return nil
	}))

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.Stop(context.Background())
			return err
		}
	}
	if err := a.startHTTP(); err != nil {
		a.Stop(context.Background())
		return err
	}

	a.wg.Add(1)
	go a.maintain(ctx)

	a.logger.Info("ghgledger started")
	return nil
}

func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpAddr = lis.Addr()
	a.httpServer = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.Register("http", server.HTTPCloser(a.httpServer, a.cfg.HTTP.ShutdownTimeout))

	go func() {
		a.logger.Info("HTTP server listening", zap.Stringer("addr", a.httpAddr))
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcAddr = lis.Addr()
	a.grpcServer = grpcapi.NewGRPCServer(a.logger.Named("grpc"))
	grpcapi.NewServer(a.pipeline, a.engine, a.logger.Named("grpc")).Register(a.grpcServer)
	a.shutdown.Register("grpc", server.GRPCCloser(a.grpcServer, a.cfg.HTTP.ShutdownTimeout))

	go func() {
		a.logger.Info("gRPC server listening", zap.Stringer("addr", a.grpcAddr))
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

// maintain prunes idle operation stats and expired tasks until ctx ends.
func (a *App) maintain(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
			if n := a.tasks.Prune(); n > 0 {
				a.logger.Debug("pruned ingestion tasks", zap.Int("count", n))
			}
		}
	}
}

// Stop shuts the servers down and closes every resource.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()
	return a.shutdown.Shutdown(ctx, "stop requested")
}

// WaitForShutdown blocks until a signal or ctx cancellation, then shuts
// down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Close releases the store and cache of an App that was never started.
func (a *App) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the bound HTTP address once started.
func (a *App) HTTPAddr() net.Addr { return a.httpAddr }

// GRPCAddr returns the bound gRPC address once started with gRPC enabled.
func (a *App) GRPCAddr() net.Addr { return a.grpcAddr }

// Store returns the record store.
func (a *App) Store() *store.Store { return a.store }

// Engine returns the query engine.
func (a *App) Engine() *query.Engine { return a.engine }

// Pipeline returns the CSV ingestion pipeline.
func (a *App) Pipeline() *ingest.Pipeline { return a.pipeline }

// Archiver returns the upload archive reader, nil when no storage is
// configured.
func (a *App) Archiver() *ingest.Archiver { return a.archiver }

// Seeder returns a reference data seeder over the store.
func (a *App) Seeder() *reference.Seeder {
	return reference.NewSeeder(a.store, a.gases, a.logger.Named("seed"))
}
