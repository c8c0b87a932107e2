package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/p-arndt/querybench/internal/docker"
)

// ErrConnectivity is returned when no candidate endpoint became reachable
// within the attempt budget.
var ErrConnectivity = errors.New("no reachable endpoint")

// Endpoint is a candidate network address for the sandbox engine.
type Endpoint struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Strategy string `json:"strategy"`
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Strategy derives one candidate endpoint from container metadata.
// Resolve reports false when the metadata lacks what the strategy needs.
type Strategy struct {
	Name    string
	Resolve func(info *docker.NetworkInfo) (Endpoint, bool)
}

func mappedPortOn(host string) func(*docker.NetworkInfo) (Endpoint, bool) {
	return func(info *docker.NetworkInfo) (Endpoint, bool) {
		if host == "" || info.HostPort == 0 {
			return Endpoint{}, false
		}
		return Endpoint{Host: host, Port: info.HostPort}, true
	}
}

// DefaultStrategies is the resolution order used by the provisioner.
var DefaultStrategies = []Strategy{
	{Name: "localhost", Resolve: mappedPortOn("127.0.0.1")},
	{Name: "internal", Resolve: func(info *docker.NetworkInfo) (Endpoint, bool) {
		if info.IPAddress == "" {
			return Endpoint{}, false
		}
		return Endpoint{Host: info.IPAddress, Port: docker.EnginePort}, true
	}},
	{Name: "gateway", Resolve: func(info *docker.NetworkInfo) (Endpoint, bool) {
		return mappedPortOn(info.Gateway)(info)
	}},
	{Name: "wildcard", Resolve: mappedPortOn("0.0.0.0")},
}

// Candidates applies strategies in order and drops duplicate addresses.
func Candidates(info *docker.NetworkInfo, strategies []Strategy) []Endpoint {
	if info == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []Endpoint
	for _, s := range strategies {
		ep, ok := s.Resolve(info)
		if !ok || seen[ep.Addr()] {
			continue
		}
		seen[ep.Addr()] = true
		ep.Strategy = s.Name
		out = append(out, ep)
	}
	return out
}

// Opener connects to an endpoint and confirms the engine answers queries.
type Opener func(ctx context.Context, ep Endpoint) (*sqlx.DB, error)

// MySQLOpener returns an Opener for the sandbox's root account. The pool is
// pinned to one connection so every statement and the metrics reads that
// follow it share a session.
func MySQLOpener(user, password, database string, dialTimeout time.Duration) Opener {
	return func(ctx context.Context, ep Endpoint) (*sqlx.DB, error) {
		cfg := mysql.NewConfig()
		cfg.User = user
		cfg.Passwd = password
		cfg.Net = "tcp"
		cfg.Addr = ep.Addr()
		cfg.DBName = database
		cfg.Timeout = dialTimeout
		cfg.InterpolateParams = true

		db, err := sqlx.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ep.Addr(), err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		hctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		var one int
		if err := db.GetContext(hctx, &one, "SELECT 1"); err != nil {
			db.Close()
			return nil, fmt.Errorf("handshake %s: %w", ep.Addr(), err)
		}
		return db, nil
	}
}

// Probe sweeps candidate endpoints until one answers or the budget runs out.
type Probe struct {
	open     Opener
	interval time.Duration
	backoff  time.Duration // added to the interval after each failed sweep
	sleep    func(ctx context.Context, d time.Duration) error
	diagnose func(ctx context.Context, inst *Instance)
	logger   *slog.Logger
}

func NewProbe(open Opener, interval time.Duration, logger *slog.Logger) *Probe {
	return &Probe{
		open:     open,
		interval: interval,
		sleep:    sleepCtx,
		logger:   logger,
	}
}

// SetBackoff makes the wait between sweeps grow linearly by step.
func (p *Probe) SetBackoff(step time.Duration) {
	p.backoff = step
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FindReadyEndpoint returns the first candidate that accepts a connection and
// answers a trivial query, together with the open connection.
func (p *Probe) FindReadyEndpoint(ctx context.Context, inst *Instance, candidates []Endpoint, budget int) (Endpoint, *sqlx.DB, error) {
	if len(candidates) == 0 {
		return Endpoint{}, nil, fmt.Errorf("%w: no candidate endpoints", ErrConnectivity)
	}
	if budget < 1 {
		budget = 1
	}

	wait := p.interval
	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		for _, ep := range candidates {
			db, err := p.open(ctx, ep)
			if err == nil {
				p.logger.Info("sandbox endpoint ready",
					"instance", inst.Name, "endpoint", ep.Addr(), "strategy", ep.Strategy, "attempt", attempt)
				return ep, db, nil
			}
			lastErr = err
			p.logger.Debug("probe candidate failed",
				"instance", inst.Name, "endpoint", ep.Addr(), "attempt", attempt, "error", err)
		}

		if attempt == budget {
			break
		}
		p.logger.Info("sandbox not reachable yet",
			"instance", inst.Name, "attempt", attempt, "budget", budget, "retry_in", wait)
		if err := p.sleep(ctx, wait); err != nil {
			return Endpoint{}, nil, fmt.Errorf("probe interrupted: %w", err)
		}
		wait += p.backoff
	}

	if p.diagnose != nil {
		p.diagnose(ctx, inst)
	}
	return Endpoint{}, nil, fmt.Errorf("%w after %d attempts: %v", ErrConnectivity, budget, lastErr)
}
