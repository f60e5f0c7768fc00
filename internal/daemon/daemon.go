// Package daemon implements the sprintexportd background service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/drewfead/sprintexport/internal/config"
	"github.com/drewfead/sprintexport/internal/control"
	"github.com/drewfead/sprintexport/internal/csvexport"
	"github.com/drewfead/sprintexport/internal/export"
	"github.com/drewfead/sprintexport/internal/jira"
	"github.com/drewfead/sprintexport/internal/logging"
	"github.com/drewfead/sprintexport/internal/ticket"
)

// ShutdownTimeout is how long in-flight requests get to finish.
const ShutdownTimeout = 30 * time.Second

// Daemon serves exports over the control socket and HTTP.
type Daemon struct {
	config    *config.Config
	version   string
	source    ticket.SprintSource
	exporter  atomic.Pointer[export.Exporter]
	server    *control.Server
	http      *http.Server
	startedAt time.Time

	exports  atomic.Int64
	failures atomic.Int64

	shutdownOnce sync.Once
}

// New builds a daemon reading from the Jira site in cfg.
func New(cfg *config.Config, version string) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := jira.NewClientFromConfig(cfg.Jira)
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	return NewWithSource(cfg, client, version)
}

// NewWithSource builds a daemon around an existing source.
func NewWithSource(cfg *config.Config, src ticket.SprintSource, version string) (*Daemon, error) {
	policy, err := csvexport.ParseQuotePolicy(cfg.Export.Quote)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:    cfg,
		version:   version,
		source:    src,
		server:    control.NewServer(cfg.Daemon.Socket),
		startedAt: time.Now(),
	}
	d.exporter.Store(export.New(src, cfg.Jira.BaseURL, policy))
	d.http = &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.registerHandlers()
	return d, nil
}

// Exporter returns the exporter currently in use.
func (d *Daemon) Exporter() *export.Exporter {
	return d.exporter.Load()
}

// Start opens the control socket and, when configured, the HTTP listener.
func (d *Daemon) Start() error {
	if err := d.server.Start(); err != nil {
		return err
	}
	logging.Info("control server listening", "socket", d.config.Daemon.Socket)

	if addr := d.config.Daemon.HTTPAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			d.server.Stop()
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		d.safeGo("http-server", func() {
			if err := d.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("http server stopped", "error", err)
			}
		})
		logging.Info("http server listening", "addr", ln.Addr().String())
	}
	return nil
}

// Run starts the daemon and blocks until a shutdown signal.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	// Room for a second signal while shutting down.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	return d.signalLoop(sigCh)
}

// signalLoop reloads on SIGHUP and shuts down on SIGINT/SIGTERM. A second
// shutdown signal forces exit.
func (d *Daemon) signalLoop(sigCh <-chan os.Signal) error {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logging.Info("received SIGHUP, reloading config")
			if err := d.reloadConfig(); err != nil {
				logging.Error("config reload failed", "error", err)
			}

		case syscall.SIGINT, syscall.SIGTERM:
			logging.Info("received shutdown signal, starting graceful shutdown", "signal", sig.String())

			done := make(chan struct{})
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
				defer cancel()
				d.Shutdown(ctx)
				close(done)
			}()

			select {
			case <-done:
				logging.Info("graceful shutdown complete")
				return nil
			case sig2 := <-sigCh:
				logging.Warn("received second signal, forcing immediate shutdown", "signal", sig2.String())
				d.forceShutdown()
				return fmt.Errorf("forced shutdown by signal: %s", sig2.String())
			}
		}
	}
	return nil
}

// Shutdown stops accepting work and waits for in-flight requests.
func (d *Daemon) Shutdown(ctx context.Context) {
	d.shutdownOnce.Do(func() {
		if err := d.http.Shutdown(ctx); err != nil {
			logging.Warn("http shutdown", "error", err)
		}
		d.server.Stop()
		logging.Flush(2 * time.Second)
	})
}

func (d *Daemon) forceShutdown() {
	d.http.Close()
	d.server.Stop()
	logging.Flush(500 * time.Millisecond)
}

// reloadConfig re-reads the startup config file and swaps in its quote
// policy. Jira settings need a restart.
func (d *Daemon) reloadConfig() error {
	newCfg, err := d.config.Reload()
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", d.config.Path(), err)
	}
	return d.applyExportConfig(newCfg.Export)
}

func (d *Daemon) applyExportConfig(cfg config.ExportConfig) error {
	policy, err := csvexport.ParseQuotePolicy(cfg.Quote)
	if err != nil {
		return err
	}
	d.exporter.Store(export.New(d.source, d.config.Jira.BaseURL, policy))
	logging.Info("config reloaded", "quote", policy.String())
	return nil
}

// Status reports what the daemon is running with.
func (d *Daemon) Status() *control.StatusInfo {
	return &control.StatusInfo{
		Version:   d.version,
		PID:       os.Getpid(),
		StartedAt: d.startedAt.Format(time.RFC3339),
		Uptime:    time.Since(d.startedAt).Round(time.Second).String(),
		JiraURL:   d.config.Jira.BaseURL,
		HTTPAddr:  d.config.Daemon.HTTPAddr,
		Quote:     d.Exporter().Policy.String(),
		Exports:   d.exports.Load(),
		Failures:  d.failures.Load(),
	}
}

// export runs one export and records the outcome.
func (d *Daemon) export(ctx context.Context, id ticket.SprintID) *export.Result {
	res := d.Exporter().Export(ctx, id)
	d.exports.Add(1)

	finished := control.ExportFinished{SprintID: res.SprintID, Rows: res.Rows}
	if res.Fault != nil {
		d.failures.Add(1)
		finished.Kind = string(res.Fault.Kind)
	}
	d.server.Broadcast(control.Event{Type: control.EventExportFinished, Payload: finished})
	return res
}

// safeGo runs fn in a goroutine with panic recovery.
func (d *Daemon) safeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.CapturePanic(r, "goroutine", name)
			}
		}()
		fn()
	}()
}
