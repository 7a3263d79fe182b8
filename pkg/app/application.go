package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/contracts"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/middleware"
	"sync"
	"syscall"

	"github.com/julienschmidt/httprouter"
	"github.com/robfig/cron/v3"
)

type worker struct {
	name string
	run  func(ctx context.Context) error
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.KeyRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	scheduler        *cron.Cron
	workers          []worker
	shutdownHooks    []func()
	workerCancel     context.CancelFunc
	workerWG         sync.WaitGroup
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{
		cfg: cfg,
		scheduler: cron.New(cron.WithChain(
			cron.Recover(cronLogger{cfg.Log}),
			cron.SkipIfStillRunning(cronLogger{cfg.Log}),
		)),
	}
}

func (a *Application) SetApp(appHandler contracts.Handler, checks ...ReadinessCheck) {
	a.setHealthHandler(checks)
	a.setAppHandler(appHandler)
	a.setAppServer()
}

// AddWorker runs fn in the background from Run until shutdown cancels its context.
func (a *Application) AddWorker(name string, fn func(ctx context.Context) error) {
	a.workers = append(a.workers, worker{name: name, run: fn})
}

// AddCronJob schedules fn on spec. Overlapping runs are skipped.
func (a *Application) AddCronJob(name, spec string, fn func(ctx context.Context)) error {
	_, err := a.scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout*10)
		defer cancel()
		fn(ctx)
	})
	if err != nil {
		return err
	}
	a.cfg.Log.Info("Cron job scheduled", "job", name, "spec", spec)
	return nil
}

// OnShutdown registers fn to run after the server stopped, in registration order.
func (a *Application) OnShutdown(fn func()) {
	a.shutdownHooks = append(a.shutdownHooks, fn)
}

func (a *Application) setHealthHandler(checks []ReadinessCheck) {
	healthRouter := httprouter.New()
	healthHandler := NewHealthHandler(a.cfg.Client.Mongo, a.cfg.Log, checks...)
	healthHandler.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler contracts.Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewKeyRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultOwnerExtractor,
		a.cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, middleware.IdempotencyKeyHeader)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.RateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel

	for _, w := range a.workers {
		a.workerWG.Add(1)
		go func(w worker) {
			defer a.workerWG.Done()
			a.cfg.Log.Info("Starting background worker", "worker", w.name)
			if err := w.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background worker stopped with error", "worker", w.name, "error", err)
			}
		}(w)
	}

	a.scheduler.Start()
}

func (a *Application) Run() {
	a.startBackground()

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}
	a.cfg.Log.Info("Server stopped gracefully")

	a.cfg.Log.Info("Stopping background workers...")
	<-a.scheduler.Stop().Done()
	a.workerCancel()
	a.workerWG.Wait()
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	for _, hook := range a.shutdownHooks {
		hook()
	}
	a.cfg.Log.Info("Background workers stopped")
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
