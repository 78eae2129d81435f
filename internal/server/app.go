// Package server wires the gradekeeper components together and runs them:
// storage, credentials, the workflow engine, both transports and the
// background refresh purge, with graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/gradekeeper/internal/logging"
	"github.com/dmitrijs2005/gradekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gradekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gradekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gradekeeper/internal/server/config"
	"github.com/dmitrijs2005/gradekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gradekeeper/internal/server/evidence"
	"github.com/dmitrijs2005/gradekeeper/internal/server/jobs"
	"github.com/dmitrijs2005/gradekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gradekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gradekeeper/internal/server/principal"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gradekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gradekeeper/internal/server/services"
	"github.com/dmitrijs2005/gradekeeper/internal/server/workflow"

	gs "github.com/dmitrijs2005/gradekeeper/internal/server/grpc"
	hs "github.com/dmitrijs2005/gradekeeper/internal/server/http"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	metrics     *metrics.Metrics
	backends    *Backends
	credentials *credentials.Service
	auth        *services.AuthService
	assignments *services.AssignmentService
}

// Components is the storage-independent part of the application, shared by
// the server and the admin tool.
type Components struct {
	Store       repomanager.Store
	Credentials *credentials.Service
	Auth        *services.AuthService
	Assignments *services.AssignmentService
}

// Backends are the connections a Config points at.
type Backends struct {
	DB            *sql.DB
	Redis         *redis.Client
	Store         repomanager.Store
	RefreshTokens refreshtokens.Repository
}

// Connect opens the database (running migrations) and Redis when the config
// asks for them. An empty DatabaseDSN selects the in-memory store.
func Connect(ctx context.Context, c *config.Config, l logging.Logger) (*Backends, error) {
	b := &Backends{}

	if c.RefreshStore == config.RefreshStoreRedis || c.Notifier == config.NotifierRedis {
		b.Redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
	}

	if c.DatabaseDSN != "" {
		db, err := OpenDB(ctx, c.DatabaseDSN)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.DB = db
		m := repomanager.NewPostgresRepositoryManager()
		b.Store = repomanager.NewSQLStore(db, m)
		b.RefreshTokens = m.RefreshTokens(db)
	} else {
		l.Warn(ctx, "no database configured, using in-memory store")
		b.Store = memory.NewStore()
	}

	switch c.RefreshStore {
	case config.RefreshStoreRedis:
		b.RefreshTokens = refreshtokens.NewRedisRepository(b.Redis)
	case config.RefreshStoreMemory:
		b.RefreshTokens = refreshtokens.NewMemoryRepository()
	}
	if b.RefreshTokens == nil {
		b.RefreshTokens = refreshtokens.NewMemoryRepository()
	}

	return b, nil
}

// Close releases the database pool and the Redis client.
func (b *Backends) Close() {
	if b.DB != nil {
		_ = b.DB.Close()
		b.DB = nil
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
		b.Redis = nil
	}
}

// NewApp connects the configured backends and builds every service.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo, "gradekeeper-server")
	app := &App{config: c, logger: logger, metrics: metrics.New()}

	b, err := Connect(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	app.backends = b

	var notifier notify.Publisher
	if c.Notifier == config.NotifierRedis {
		notifier = notify.NewRedisPublisher(b.Redis)
	} else {
		notifier = notify.NewLogPublisher(logger)
	}

	var ev services.EvidenceStore
	if c.S3Bucket != "" {
		s3, err := evidence.NewS3Store(ctx, evidence.Options{
			Region:    c.S3Region,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Endpoint:  c.S3BaseEndpoint,
		})
		if err != nil {
			logger.Warn(ctx, "evidence export disabled", "error", err)
		} else {
			ev = s3
		}
	}

	comp := Build(c, b.Store, b.RefreshTokens, notifier, ev, logger, app.metrics)
	app.credentials = comp.Credentials
	app.auth = comp.Auth
	app.assignments = comp.Assignments

	return app, nil
}

// Build assembles credentials, principal resolution, the workflow engine and
// the services on top of an already opened store.
func Build(c *config.Config, store repomanager.Store, refreshRepo refreshtokens.Repository,
	notifier notify.Publisher, ev services.EvidenceStore, l logging.Logger, m metrics.Recorder) *Components {

	signer := auth.NewSigner([]byte(c.SecretKey), c.TokenIssuer, c.TokenAudience)
	creds := credentials.NewService(signer, refreshRepo, credentials.Options{
		AccessTTL:  c.AccessTokenValidityDuration,
		RefreshTTL: c.RefreshTokenValidityDuration,
		Logger:     l,
		Metrics:    m,
	})
	resolver := principal.NewResolver(store.Repos().Users, l)
	trail := audit.NewTrail(store)
	guard := authz.NewGuard(l)
	authz.RegisterDefaults(guard, repomanager.ScopedAssignments{Store: store}, repomanager.ScopedUsers{Store: store})
	engine := workflow.NewEngine(store, trail, guard, l, m)

	return &Components{
		Store:       store,
		Credentials: creds,
		Auth:        services.NewAuthService(store, creds, resolver, l),
		Assignments: services.NewAssignmentService(engine, notifier, ev, l),
	}
}

// OpenDB opens the pgx-backed pool and brings the schema up to date.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate error: %w", err)
	}
	return db, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewServer(app.config.EndpointAddrGRPC, app.logger, app.auth, app.assignments)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := hs.NewServer(app.config.EndpointAddrHTTP, app.logger, app.auth, app.assignments, app.metrics.Handler())
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives, ctx is cancelled or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		jobs.NewRefreshPurge(app.credentials, app.config.PurgeInterval, app.logger).Run(ctx)
	}()

	wg.Wait()

	app.backends.Close()
	app.logger.Info(context.Background(), "App stopped")
}
