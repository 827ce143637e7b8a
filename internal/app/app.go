// Package app wires the attendance core from configuration. The API, the
// flusher and the device CLI all build the same graph.
package app

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/attendance"
	"rollcall/internal/clock"
	"rollcall/internal/config"
	"rollcall/internal/netcheck"
	"rollcall/internal/remote"
	"rollcall/internal/roster"
	"rollcall/internal/store"
	"rollcall/internal/syncer"
)

// Core is the wired attendance core.
type Core struct {
	Store    *store.Store
	Roster   *roster.Static
	Remote   *remote.Client
	Oracle   netcheck.Oracle
	Engine   *syncer.Engine
	Registry *attendance.Registry
	Clock    clock.Clock
}

// Build opens the store and roster and connects the collaborators. A nil clk
// uses the system clock in cfg.Location.
func Build(cfg config.App, clk clock.Clock, logger *log.Logger) (*Core, error) {
	if logger == nil {
		logger = log.Default()
	}
	if clk == nil {
		clk = clock.System{Location: cfg.Location}
	}

	ros, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	client := remote.New(cfg.EndpointURL, cfg.RequestTimeout, cfg.DryRun)
	oracle := Oracle(cfg, client, logger)
	engine := syncer.New(oracle, client, st)
	engine.Logger = logger

	reg := attendance.NewRegistry(st, ros, engine, clk, cfg.CutoffHour)
	reg.Logger = logger

	return &Core{
		Store:    st,
		Roster:   ros,
		Remote:   client,
		Oracle:   oracle,
		Engine:   engine,
		Registry: reg,
		Clock:    clk,
	}, nil
}

// EnableMetrics registers the sync metrics with reg and attaches them to the engine.
func (c *Core) EnableMetrics(reg prometheus.Registerer) error {
	m := syncer.NewMetrics()
	if err := m.Register(reg); err != nil {
		return err
	}
	c.Engine.Metrics = m
	return nil
}

// Close releases the store.
func (c *Core) Close() error {
	return c.Store.Close()
}

// Oracle picks the connectivity check for the configured mode. In auto mode a
// TCP dial to PROBE_ADDR, or else to the endpoint host, decides.
func Oracle(cfg config.App, client *remote.Client, logger *log.Logger) netcheck.Oracle {
	switch cfg.Connectivity {
	case config.ConnectivityOnline:
		return netcheck.Static(true)
	case config.ConnectivityOffline:
		return netcheck.Static(false)
	}
	if cfg.DryRun {
		return netcheck.Static(true)
	}
	if cfg.ProbeAddr != "" {
		return netcheck.Dialer{Addr: cfg.ProbeAddr, Timeout: cfg.ProbeTimeout}
	}
	if cfg.EndpointURL == "" {
		logger.Printf("ENDPOINT_URL not set; submissions stay in the offline queue")
		return netcheck.Static(false)
	}
	addr, err := netcheck.DialAddr(cfg.EndpointURL)
	if err != nil {
		logger.Printf("connectivity dialer: %v; falling back to endpoint health check", err)
		return netcheck.Health{Check: client.Health, Timeout: cfg.ProbeTimeout}
	}
	return netcheck.Dialer{Addr: addr, Timeout: cfg.ProbeTimeout}
}
