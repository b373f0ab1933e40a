// Package collector drives an oracle through a probing plan, gathering
// (input, output) sample pairs under a concurrency cap with inter-call
// pacing, bounded retries, and partial-failure tolerance. A malformed
// response or exhausted retry budget records a failed sample; it never
// aborts the batch.
package collector

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/flyxtv/embedcodec/errs"
	"github.com/flyxtv/embedcodec/internal/b64url"
	"github.com/flyxtv/embedcodec/internal/logger"
	"github.com/flyxtv/embedcodec/oracle"
	"github.com/flyxtv/embedcodec/types"
)

const (
	defaultConcurrency = 2
	defaultRetries     = 2
	defaultCallTimeout = 30 * time.Second

	retryBackoff = 500 * time.Millisecond
)

// Config holds collection parameters. Zero values use defaults.
type Config struct {
	// Concurrency caps in-flight oracle calls.
	Concurrency int
	// Delay paces calls so the provider is not hammered.
	Delay time.Duration
	// Retries bounds re-attempts of a transient per-probe failure.
	Retries int
	// CallTimeout bounds a single oracle call so one stalled request cannot
	// stall the batch.
	CallTimeout time.Duration
}

// Collector gathers samples from an oracle.
type Collector struct {
	orc oracle.Oracle
	cfg Config
	log *logger.ComponentLogger

	mu   sync.Mutex
	next time.Time
}

// New creates a collector for the given oracle.
func New(orc oracle.Oracle, cfg Config) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Collector{
		orc: orc,
		cfg: cfg,
		log: logger.WithComponent(logger.ComponentCollector),
	}
}

// Collect runs the plan to completion or until ctx expires. The returned set
// always contains whatever samples were gathered; the error is non-nil only
// when the batch was cut short by ctx.
func (c *Collector) Collect(ctx context.Context, plan Plan) (*types.SampleSet, error) {
	set := types.NewSampleSet()
	var setMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	c.log.Info("collecting samples", map[string]interface{}{
		"probes":      plan.Len(),
		"concurrency": c.cfg.Concurrency,
		"oracle":      c.orc.Name(),
	})

	for _, probe := range plan.Probes {
		probe := probe
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sample := c.probe(gctx, probe)
			setMu.Lock()
			set.Add(sample)
			setMu.Unlock()
			if sample.Err != nil {
				c.log.Warn("probe failed", map[string]interface{}{
					"label": probe.Label,
					"error": sample.Err.Error(),
				})
			}
			// Deadline expiry is the only error that stops the batch.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}

	err := g.Wait()
	c.log.Info("collection finished", map[string]interface{}{
		"collected": set.Len(),
		"failed":    len(set.Failed()),
	})
	if err != nil {
		return set, errors.WithMessage(err, "collection aborted")
	}
	return set, nil
}

// probe performs one planned call with pacing and bounded retries.
func (c *Collector) probe(ctx context.Context, p Probe) types.Sample {
	sample := types.Sample{Label: p.Label, Plaintext: p.Plaintext}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				sample.Err = ctx.Err()
				return sample
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		if err := c.pace(ctx); err != nil {
			sample.Err = err
			return sample
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		raw, err := c.orc.Encode(callCtx, p.Plaintext)
		cancel()
		if err != nil {
			lastErr = err
			// Only transient oracle failures are worth another attempt.
			if errors.Is(err, errs.ErrOracleUnavailable) && ctx.Err() == nil {
				continue
			}
			break
		}

		body, err := b64url.Decode(raw)
		if err != nil {
			lastErr = errors.Wrapf(errs.ErrOracleMalformed, "ciphertext is not base64: %v", err)
			break
		}
		sample.Raw = raw
		sample.Body = body
		return sample
	}

	sample.Err = lastErr
	return sample
}

// pace enforces the inter-call delay across all workers.
func (c *Collector) pace(ctx context.Context) error {
	if c.cfg.Delay <= 0 {
		return nil
	}
	c.mu.Lock()
	now := time.Now()
	wait := time.Duration(0)
	if now.Before(c.next) {
		wait = c.next.Sub(now)
		c.next = c.next.Add(c.cfg.Delay)
	} else {
		c.next = now.Add(c.cfg.Delay)
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
