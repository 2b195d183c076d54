// Package web wires the web front end: the Postgres pool and migrations,
// account seeding, the session store, the inference client, the optional
// upload archive and the HTML UI.
package web

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/dbx"
	"github.com/dmitrijs2005/mnistlab/internal/httpx"
	"github.com/dmitrijs2005/mnistlab/internal/logging"
	"github.com/dmitrijs2005/mnistlab/internal/web/client"
	"github.com/dmitrijs2005/mnistlab/internal/web/config"
	"github.com/dmitrijs2005/mnistlab/internal/web/httpui"
	"github.com/dmitrijs2005/mnistlab/internal/web/repositories/repomanager"
	"github.com/dmitrijs2005/mnistlab/internal/web/services"
	"github.com/dmitrijs2005/mnistlab/internal/web/sessions"
	"github.com/dmitrijs2005/mnistlab/internal/web/storage"
)

const serviceName = "mnist-web"

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	ui      *httpui.UI
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	app := &App{config: c, logger: logger}

	db, err := dbx.Open(ctx, c.DatabaseDSN, dbx.PoolOptions{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config
	rm := repomanager.NewPostgresRepositoryManager()

	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	users := services.NewUserService(app.db, rm, app.logger)
	if c.SeedUsersPath != "" {
		n, err := users.SeedFromFile(ctx, c.SeedUsersPath)
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		app.logger.Info(ctx, "seed file applied", "path", c.SeedUsersPath, "created", n)
	}

	store, err := app.newSessionStore(ctx)
	if err != nil {
		return err
	}

	archive, err := app.newArchive(ctx)
	if err != nil {
		return err
	}

	backend := client.NewHTTPClient(c.InferenceAPIURL, c.InferenceTimeout, c.HealthTimeout)
	predictions := services.NewPredictionService(app.db, rm, backend, archive, c.ModelVersion, app.logger)

	sm := sessions.NewManager(store, app.sessionSecret(ctx), c.SessionTTL, c.SecureCookie, app.logger)

	ui, err := httpui.New(users, predictions, sm, httpx.NewMetrics(serviceName), app.logger)
	if err != nil {
		return err
	}
	app.ui = ui
	return nil
}

// newSessionStore uses Redis when an address is configured and process
// memory otherwise.
func (app *App) newSessionStore(ctx context.Context) (sessions.Store, error) {
	if app.config.RedisAddr == "" {
		app.logger.Info(ctx, "sessions kept in memory")
		return sessions.NewMemoryStore(), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr, Password: app.config.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	app.closers = append(app.closers, rdb.Close)
	app.logger.Info(ctx, "sessions kept in redis", "addr", app.config.RedisAddr)
	return sessions.NewRedisStore(rdb, ""), nil
}

func (app *App) newArchive(ctx context.Context) (storage.Archive, error) {
	c := app.config
	if c.S3Bucket == "" {
		return storage.Nop{}, nil
	}
	a, err := storage.NewS3Archive(ctx, storage.S3Options{
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 archive: %w", err)
	}
	app.logger.Info(ctx, "uploads archived to s3", "bucket", c.S3Bucket)
	return a, nil
}

// sessionSecret falls back to a random per-process secret, which logs
// everyone out on restart.
func (app *App) sessionSecret(ctx context.Context) []byte {
	if app.config.SessionSecret != "" {
		return []byte(app.config.SessionSecret)
	}
	app.logger.Warn(ctx, "SESSION_SECRET not set, using a random secret")
	return common.GenerateRandByteArray(32)
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpx.NewServer(app.config.HTTPAddr, app.ui.Router(), app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.close()

	app.logger.Info(ctx, "Starting web front end...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "Web front end stopped")
}
