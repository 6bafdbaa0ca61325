// Package dbclean empties the benchmark databases in-process and probes
// them for readiness.
package dbclean

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/retry"
)

// Target is one database that can be probed and emptied.
type Target interface {
	Name() string
	Ping(ctx context.Context) error
	Clean(ctx context.Context) error
	Close(ctx context.Context) error
}

// Cleaner cleans every target. A failing target does not stop the others.
type Cleaner struct {
	Targets []Target
	Logger  *zap.Logger
}

// NewCleaner returns a cleaner over targets.
func NewCleaner(logger *zap.Logger, targets ...Target) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{Targets: targets, Logger: logger}
}

// Clean empties every target and returns the joined errors.
func (c *Cleaner) Clean(ctx context.Context) error {
	var errs []error
	for _, t := range c.Targets {
		c.Logger.Info("cleaning database", zap.String("db", t.Name()))
		if err := t.Clean(ctx); err != nil {
			c.Logger.Error("database cleanup failed", zap.String("db", t.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		c.Logger.Info("database cleaned", zap.String("db", t.Name()))
	}
	return errors.Join(errs...)
}

// WaitReady pings every target until it answers, backing off per cfg.
func (c *Cleaner) WaitReady(ctx context.Context, cfg retry.Config) error {
	for _, t := range c.Targets {
		probe := cfg
		probe.OnRetry = func(attempt int, err error, wait time.Duration) {
			c.Logger.Debug("database not ready",
				zap.String("db", t.Name()),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(err))
		}
		err := retry.Do(ctx, probe, func(ctx context.Context) error {
			err := t.Ping(ctx)
			if err != nil && IsAuthError(err) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		c.Logger.Info("database ready", zap.String("db", t.Name()))
	}
	return nil
}

// Close releases every target's connections.
func (c *Cleaner) Close(ctx context.Context) error {
	var errs []error
	for _, t := range c.Targets {
		if err := t.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// IsAuthError reports credential failures, which retrying cannot fix.
func IsAuthError(err error) bool {
	return isPostgresAuthError(err) || isNeo4jAuthError(err)
}
