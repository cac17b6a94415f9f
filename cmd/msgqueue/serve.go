package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Swind/go-message-queue/config"
	"github.com/Swind/go-message-queue/core"
	"github.com/Swind/go-message-queue/logging"
	mqprom "github.com/Swind/go-message-queue/observability/prometheus"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the configured queues until interrupted",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "heartbeat",
				Value: "@every 10s",
				Usage: "Cron spec of the per-queue heartbeat item (empty disables it)",
			},
			&cli.Float64Flag{
				Name:  "failure-rate",
				Value: 10,
				Usage: "Failure reports logged per second and queue",
			},
		},

		Action: ServeAction,
	}
}

func ServeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	logger := newLogService(c, cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, logger, c.String("heartbeat"), c.Float64("failure-rate"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if err := srv.Start(ctx); err != nil {
		srv.Stop()
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if path := c.String("config"); path != "" {
		go func() {
			err := config.Watch(ctx, path, logger, func(next *config.Config) {
				applyFlags(c, next)
				logger.Apply(next.Log)
				logger.Info("log settings applied", core.F("level", next.Log.Level), core.F("format", next.Log.Format))
			})
			if err != nil {
				logger.Warn("config watch stopped", core.F("error", err))
			}
		}()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("systemd notify failed", core.F("error", err))
	} else if ok {
		logger.Debug("systemd notified ready")
	}
	logger.Info("serving", core.F("queues", len(srv.loops)), core.F("metrics", cfg.Metrics.Enabled))

	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	logger.Info("shutting down")
	srv.Stop()
	return nil
}

// server owns everything serve starts.
type server struct {
	cfg    *config.Config
	logger *logging.Service

	registry *core.TimerRegistry
	loops    []*core.Loop
	handles  []*core.RepeatingHandle

	promReg *prom.Registry
	poller  *mqprom.SnapshotPoller
	http    *http.Server

	heartbeat string
}

func newServer(cfg *config.Config, logger *logging.Service, heartbeat string, failureRate float64) (*server, error) {
	s := &server{cfg: cfg, logger: logger, heartbeat: heartbeat}

	var metrics core.Metrics = &core.NilMetrics{}
	if cfg.Metrics.Enabled {
		s.promReg = prom.NewRegistry()
		exporter, err := mqprom.NewMetricsExporter(cfg.Metrics.Namespace, s.promReg, mqprom.ExporterOptions{})
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		metrics = exporter
		s.poller, err = mqprom.NewSnapshotPoller(cfg.Metrics.Namespace, s.promReg, cfg.Metrics.Poll())
		if err != nil {
			return nil, fmt.Errorf("snapshot poller: %w", err)
		}
	}

	s.registry = core.NewTimerRegistry(
		core.WithFallbackInterval(cfg.Registry.Fallback()),
		core.WithRegistryLogger(logger),
		core.WithRegistryMetrics(metrics),
	)
	s.poller.AddRegistry("default", s.registry)

	for _, qc := range cfg.Queues {
		q := core.NewDeferredQueue(
			core.WithQueueName(qc.Name),
			core.WithQueueLogger(logger),
			core.WithQueueMetrics(metrics),
			core.WithHistorySize(qc.HistorySize),
			core.WithFailureHandler(logging.NewRateLimitedFailureHandler(nil, logger, failureRate, int(failureRate)+1)),
		)
		s.loops = append(s.loops, core.NewLoop(q, qc.Idle()))
		s.poller.AddQueue(qc.Name, q)
	}
	return s, nil
}

func (s *server) Start(ctx context.Context) error {
	for _, loop := range s.loops {
		if err := loop.Start(); err != nil {
			return err
		}
		if s.heartbeat == "" {
			continue
		}
		q := loop.Queue()
		h, err := core.RepeatCron(s.registry.NewTimer(loop), s.heartbeat, func(ctx context.Context) {
			stats := q.Stats()
			s.logger.Debug("heartbeat", core.F("queue", stats.Name), core.F("executed", stats.Executed), core.F("failed", stats.Failed))
		})
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		s.handles = append(s.handles, h)
	}

	if s.promReg == nil {
		return nil
	}
	s.poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	s.http = &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", core.F("addr", s.cfg.Metrics.Addr), core.F("error", err))
		}
	}()
	return nil
}

func (s *server) Stop() {
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.http.Shutdown(ctx)
		cancel()
	}
	s.poller.Stop()
	for _, h := range s.handles {
		h.Stop()
	}
	for _, loop := range s.loops {
		loop.Stop()
		if n := loop.Queue().Clear(); n > 0 {
			s.logger.Debug("dropped pending work", core.F("queue", loop.Queue().Name()), core.F("count", n))
		}
	}
	s.registry.Stop()
}
