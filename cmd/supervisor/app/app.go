package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/drone-supervisor/internal/link"
	"github.com/roman-kulish/drone-supervisor/internal/link/mavlink"
	"github.com/roman-kulish/drone-supervisor/internal/link/sim"
	"github.com/roman-kulish/drone-supervisor/internal/storage"
)

const (
	metricsPath         = "/metrics"
	simulatorVehicle    = "simulator"
	serverShutdownGrace = 5 * time.Second
)

// StartupError marks a failure which happened before any worker was spawned
type StartupError struct {
	err error
}

func (e *StartupError) Error() string {
	return e.err.Error()
}

func (e *StartupError) Unwrap() error {
	return e.err
}

func startupError(format string, args ...any) error {
	return &StartupError{err: fmt.Errorf(format, args...)}
}

// Run connects to the vehicle and supervises the flight until it ends.
func Run(ctx context.Context, config *Config, logger *slog.Logger, options ...func(*Supervisor)) (*Summary, error) {
	vehicle, err := openLink(&config.Link, logger)
	if err != nil {
		return nil, startupError("failed to open link: %w", err)
	}
	defer vehicle.Close()

	logger.Info("waiting for the vehicle", slog.String("timeout", config.Link.WaitTimeout.Duration().String()))
	if err = vehicle.WaitForInitialLink(ctx, config.Link.WaitTimeout.Duration()); err != nil {
		return nil, startupError("failed to connect to the vehicle: %w", err)
	}

	options = append([]func(*Supervisor){WithLogger(logger)}, options...)

	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return nil, startupError("failed to create storage: %w", err)
		}
		defer store.Close()

		vehicleName := config.Link.Endpoint
		if config.Link.Simulate {
			vehicleName = simulatorVehicle
		}

		target := storage.Point{X: Target.X, Y: Target.Y, Z: Target.Z}
		sessionID, err := store.CreateSession(ctx, vehicleName, target, config)
		if err != nil {
			return nil, startupError("failed to create session: %w", err)
		}
		logger.Info("recording flight", slog.Int64("session", sessionID))

		options = append(options, WithRecorder(storage.NewRecorder(store, sessionID)))
	}

	supervisor, err := NewSupervisor(vehicle, options...)
	if err != nil {
		return nil, startupError("failed to create supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var summary *Summary
	g.Go(func() (err error) {
		defer cancel() // stops the metrics server
		summary, err = supervisor.Run(gctx)
		return
	})

	if config.Metrics.Address != "" {
		server := newMetricsServer(config.Metrics.Address)

		g.Go(func() error {
			logger.Info("serving metrics", slog.String("address", config.Metrics.Address+metricsPath))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdownGrace)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err = g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func openLink(config *LinkConfig, logger *slog.Logger) (link.Link, error) {
	if config.Simulate {
		var options []func(*sim.Vehicle)
		if config.SilenceAfter > 0 {
			options = append(options, sim.WithSilenceAfter(config.SilenceAfter.Duration()))
		}
		logger.Info("flying the simulated vehicle")
		return sim.New(options...)
	}

	return mavlink.Dial(mavlink.Config{
		Endpoint:        config.Endpoint,
		SystemID:        config.SystemID,
		TargetSystem:    config.TargetSystem,
		TargetComponent: config.TargetComponent,
	}, mavlink.WithLogger(logger))
}

func newMetricsServer(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())

	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DataDirectory
	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("flight_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
