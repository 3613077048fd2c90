package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/habitvoice/internal/app"
)

func main() {
	cfg := app.LoadConfigFromEnv()

	flags := log.LstdFlags
	if cfg.LogLevel == "debug" {
		flags |= log.Lshortfile
	}
	logger := log.New(os.Stdout, "", flags)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      getEnvironment(),
		})
		if err != nil {
			logger.Printf("sentry init failed: %v", err)
		} else {
			logger.Printf("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatalf("init app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		logger.Fatalf("start app: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, a, cfg.ShutdownTimeout, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("server: %v", err)
		os.Exit(1)
	}
}

// shutdown stops accepting turns, lets in-flight turns finish within
// timeout, then releases the app's resources.
func shutdown(srv *http.Server, a *app.App, timeout time.Duration, logger *log.Logger) error {
	logger.Printf("shutting down, %d turns in flight", a.Turns().ActiveCount())
	a.Turns().StartDraining()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.Turns().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Printf("shutdown timeout with %d turns still running", a.Turns().ActiveCount())
	}

	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
