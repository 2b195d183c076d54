// Package inference wires the inference service: it loads the model once at
// startup, serves the HTTP API and, when configured, the gRPC health endpoint.
package inference

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/mnistlab/internal/common"
	"github.com/dmitrijs2005/mnistlab/internal/httpx"
	"github.com/dmitrijs2005/mnistlab/internal/inference/config"
	"github.com/dmitrijs2005/mnistlab/internal/inference/httpapi"
	"github.com/dmitrijs2005/mnistlab/internal/inference/model"
	"github.com/dmitrijs2005/mnistlab/internal/logging"

	gs "github.com/dmitrijs2005/mnistlab/internal/inference/grpc"
)

type App struct {
	config *config.Config
	logger logging.Logger
	api    *httpapi.API
}

// NewApp loads the checkpoint. A model that cannot be loaded is fatal: the
// service never starts without one.
func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	m, err := model.Load(c.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("model load error: %w", err)
	}
	logger.Info(context.Background(), "model loaded", "path", c.CheckpointPath, "version", c.ModelVersion)

	api := httpapi.New(m, c.ModelVersion, logger, httpx.NewMetrics(common.InferenceServiceName))

	return &App{config: c, logger: logger, api: api}, nil
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
	s := httpx.NewServer(app.config.HTTPAddr, app.api.Router(), app.logger, app.config.ShutdownTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.GRPCAddr, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting inference service...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()
	app.logger.Info(context.Background(), "Inference service stopped")
}
