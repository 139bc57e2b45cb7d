// camsession: camera session service
// Runs the capture pipeline behind a session coordinator and serves
// viewers over WebSocket and WebRTC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-camsession/internal/config"
	"github.com/teslashibe/go-camsession/internal/log"
	"github.com/teslashibe/go-camsession/pkg/coordinator"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/permission"
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/pipeline/cvcam"
	"github.com/teslashibe/go-camsession/pkg/rtcview"
	"github.com/teslashibe/go-camsession/pkg/web"
)

var (
	version = "0.1.0"
	mock    = flag.Bool("mock", false, "Use the synthetic pipeline instead of gocv")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *mock {
		cfg.Pipeline = config.PipelineMock
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := log.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting camsession", "version", version, "pipeline", cfg.Pipeline, "port", cfg.Port)

	if err := run(cfg, logger); err != nil {
		logger.Error("camsession stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func newPipeline(cfg *config.Config, logger *slog.Logger) pipeline.Pipeline {
	if cfg.Pipeline == config.PipelineMock {
		return pipeline.NewMock(
			pipeline.WithPattern(cfg.MockFPS),
			pipeline.WithCaptureSize(cfg.CaptureWidth, cfg.CaptureHeight),
			pipeline.WithLogger(logger),
		)
	}
	return cvcam.New(cvcam.Config{
		ModelPath:   cfg.ModelPath,
		ModelConfig: cfg.ModelConfig,
		DeviceBack:  cfg.DeviceBack,
		DeviceFront: cfg.DeviceFront,
		Width:       cfg.CaptureWidth,
		Height:      cfg.CaptureHeight,
	}, cvcam.WithLogger(logger))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var brokerOpts []permission.Option
	if cfg.AutoGrant {
		brokerOpts = append(brokerOpts, permission.WithAutoGrant(permission.Camera))
	}
	broker := permission.NewBroker(log.Component("permission"), brokerOpts...)

	coord := coordinator.New(
		newPipeline(cfg, log.Component("pipeline")),
		broker,
		coordinator.WithLogger(log.Component("coordinator")),
		coordinator.WithMetrics(coordinator.NewMetrics(reg)),
	)

	var srv *web.Server
	loop := host.New(coord,
		host.WithLogger(log.Component("host")),
		host.WithAfter(func(ev host.Event, err error) {
			if srv != nil {
				srv.AfterEvent(ev, err)
			}
		}),
	)

	rtc := rtcview.NewManager(loop, coord,
		rtcview.WithLogger(log.Component("rtcview")),
		rtcview.WithSTUN(cfg.STUNServer),
		rtcview.WithJPEGQuality(cfg.JPEGQuality),
	)

	srv = web.NewServer(cfg.Address(), loop, coord, broker,
		web.WithLogger(log.Component("web")),
		web.WithRegistry(reg),
		web.WithAnswerer(rtc),
		web.WithJPEGQuality(cfg.JPEGQuality),
		web.WithAccessLog(log.ParseLevel(cfg.LogLevel) == slog.LevelDebug),
	)
	coord.AddReporter(srv)

	// Permission answers arrive from the HTTP side; hand them to the loop.
	broker.OnResult(func(c permission.Capability, granted bool) {
		if c != permission.Camera {
			return
		}
		ev := host.PermissionResult{Granted: granted, Selector: coord.Session().Selector}
		if err := loop.Post(ev); err != nil && !errors.Is(err, host.ErrStopped) {
			logger.Warn("failed to post permission result", "error", err)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := loop.Post(host.Initialize{}); err != nil {
			return err
		}
		if cfg.ResumeOnStart {
			return loop.Post(host.Resume{Selector: pipeline.Selector(cfg.Camera)})
		}
		return nil
	})

	g.Go(func() error {
		return handleSignals(gctx, cfg, logger, loop, coord, srv, rtc)
	})

	return g.Wait()
}

// handleSignals maps process signals onto lifecycle events.
// SIGUSR1 resumes, SIGUSR2 pauses, SIGINT/SIGTERM shut down.
func handleSignals(ctx context.Context, cfg *config.Config, logger *slog.Logger, loop *host.Loop, coord *coordinator.Coordinator, srv *web.Server, rtc *rtcview.Manager) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return shutdown(cfg, logger, loop, coord, srv, rtc)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("resume requested", "signal", sig.String())
				if err := loop.Post(host.Resume{Selector: pipeline.Selector(cfg.Camera)}); err != nil {
					logger.Warn("failed to post resume", "error", err)
				}
			case syscall.SIGUSR2:
				logger.Info("pause requested", "signal", sig.String())
				if err := loop.Post(host.Pause{}); err != nil {
					logger.Warn("failed to post pause", "error", err)
				}
			default:
				logger.Info("shutting down", "signal", sig.String())
				return shutdown(cfg, logger, loop, coord, srv, rtc)
			}
		}
	}
}

func shutdown(cfg *config.Config, logger *slog.Logger, loop *host.Loop, coord *coordinator.Coordinator, srv *web.Server, rtc *rtcview.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	// Viewers go first so their surfaces are destroyed while the loop runs.
	if err := rtc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("rtc: %w", err))
	}

	if err := loop.Do(ctx, host.Pause{}); err != nil && !errors.Is(err, host.ErrStopped) {
		logger.Warn("pause on shutdown failed", "error", err)
	}
	err := loop.Do(ctx, host.Shutdown{})
	switch {
	case errors.Is(err, host.ErrStopped):
		// The loop is gone, so nothing else touches the session.
		if cerr := coord.Close(); cerr != nil && !errors.Is(cerr, coordinator.ErrClosed) {
			errs = append(errs, fmt.Errorf("session: %w", cerr))
		}
	case err != nil && !errors.Is(err, coordinator.ErrClosed):
		errs = append(errs, fmt.Errorf("session: %w", err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("web server: %w", err))
	}

	return errors.Join(errs...)
}
