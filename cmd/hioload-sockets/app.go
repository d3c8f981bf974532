//go:build unix

// File: cmd/hioload-sockets/app.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// fx wiring for the serve command: config, logger, metrics, runloop and the
// DNS responder, each with its lifecycle hooks.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/momentics/hioload-sockets/control"
	"github.com/momentics/hioload-sockets/runloop"
	"github.com/momentics/hioload-sockets/server"
)

// configPath is the YAML file serve was started with; empty means defaults.
type configPath string

func newApp(path string, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.Supply(configPath(path)),
		fx.Provide(
			loadConfig,
			newConfigStore,
			newLogger,
			newRegistry,
			newMetrics,
			control.NewDebugProbes,
			newLoop,
			newDNS,
		),
		fx.Invoke(runLoop, serveMetrics, watchReload),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	}
	return fx.New(append(opts, extra...)...)
}

func loadConfig(path configPath) (*control.Config, error) {
	if path == "" {
		return control.DefaultConfig(), nil
	}
	return control.LoadConfig(string(path))
}

func newConfigStore(cfg *control.Config) *control.ConfigStore {
	return control.NewConfigStore(cfg)
}

func newLogger(lc fx.Lifecycle, cfg *control.Config) (*zap.Logger, error) {
	log, err := control.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() { _ = log.Sync() }))
	return log, nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func newMetrics(reg *prometheus.Registry) *control.Metrics {
	return control.NewMetrics(reg)
}

func newLoop(lc fx.Lifecycle, cfg *control.Config, log *zap.Logger, m *control.Metrics, dp *control.DebugProbes) (*runloop.Loop, error) {
	loop, err := runloop.New(
		runloop.WithConfig(cfg.Runloop),
		runloop.WithLogger(log.Named("runloop")),
		runloop.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	loop.RegisterProbes(dp, "runloop")
	lc.Append(fx.StopHook(loop.Close))
	return loop, nil
}

func newDNS(lc fx.Lifecycle, cfg *control.Config, loop *runloop.Loop, log *zap.Logger, m *control.Metrics) (*server.DNS, error) {
	addr, err := netip.ParseAddrPort(cfg.DNS.Listen)
	if err != nil {
		return nil, err
	}
	zone, err := server.ZoneFromConfig(cfg.DNS)
	if err != nil {
		return nil, err
	}
	s, err := server.NewDNS(loop, addr,
		server.WithZone(zone),
		server.WithLogger(log.Named("dns")),
		server.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(s.Close))
	return s, nil
}

// runLoop drives the runloop on its own goroutine for the app lifetime. A
// fatal loop error shuts the app down. Taking the responder makes fx build
// it first, so the loop is stopped before the responder is closed.
func runLoop(lc fx.Lifecycle, sd fx.Shutdowner, loop *runloop.Loop, _ *server.DNS, log *zap.Logger) {
	done := make(chan error, 1)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				err := loop.Start()
				if err != nil {
					log.Error("runloop failed", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
				done <- err
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := loop.Stop(); err != nil {
				return err
			}
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

// serveMetrics exposes Prometheus metrics and the debug probes when
// metrics.listen is set.
func serveMetrics(lc fx.Lifecycle, cfg *control.Config, reg *prometheus.Registry, dp *control.DebugProbes, log *zap.Logger) {
	if cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dp.DumpState())
	})
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("metrics listening", zap.Stringer("addr", ln.Addr()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: srv.Shutdown,
	})
}

// watchReload re-reads the config file on SIGHUP and pushes new records to
// the responder.
func watchReload(lc fx.Lifecycle, path configPath, store *control.ConfigStore, s *server.DNS, log *zap.Logger) {
	store.OnReload(func(cfg *control.Config) {
		zone, err := server.ZoneFromConfig(cfg.DNS)
		if err != nil {
			log.Error("reloaded records rejected", zap.Error(err))
			return
		}
		s.SetRecords(zone)
	})
	if path == "" {
		return
	}
	sig := make(chan os.Signal, 1)
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			signal.Notify(sig, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-sig:
						if err := store.Reload(string(path)); err != nil {
							log.Error("config reload failed", zap.Error(err))
							continue
						}
						log.Info("config reloaded", zap.String("path", string(path)))
					case <-stop:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			signal.Stop(sig)
			close(stop)
			return nil
		},
	})
}
