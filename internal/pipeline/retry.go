package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

// State is the enrichment state of one URL.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateRetrying   State = "retrying"
	StateSuccess    State = "success"
	StateSkipped    State = "skipped"
)

// Outcome is the terminal result of enriching one URL. Updates is empty
// when the attempt succeeded but produced no record.
type Outcome struct {
	State    State
	Attempts int
	Updates  map[string]string
	Err      error
}

// EnrichFunc is the unit of work retried by the Controller.
type EnrichFunc func(ctx context.Context, url string) (map[string]string, error)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	MaxAttempts   int
	Cooldown      time.Duration
	PolitenessMin time.Duration
	PolitenessMax time.Duration
	// Sleep waits for d or until ctx is done. Defaults to
	// resilience.SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Controller retries enrichment with a fixed cooldown and paces
// consecutive URLs with a random politeness delay. It is the only place
// where enrichment errors become state transitions.
type Controller struct {
	cfg    ControllerConfig
	jitter func(n int64) int64
	paced  bool
}

// NewController creates a Controller. MaxAttempts below 1 is treated as 1.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PolitenessMax < cfg.PolitenessMin {
		cfg.PolitenessMax = cfg.PolitenessMin
	}
	if cfg.Sleep == nil {
		cfg.Sleep = resilience.SleepContext
	}
	return &Controller{cfg: cfg, jitter: rand.Int64N}
}

// Pace waits a random delay in [PolitenessMin, PolitenessMax] before every
// URL except the first.
func (c *Controller) Pace(ctx context.Context) error {
	if !c.paced {
		c.paced = true
		return ctx.Err()
	}
	d := c.politeness()
	zap.L().Debug("pipeline: politeness delay", zap.Duration("delay", d))
	return c.cfg.Sleep(ctx, d)
}

func (c *Controller) politeness() time.Duration {
	span := int64(c.cfg.PolitenessMax - c.cfg.PolitenessMin)
	if span <= 0 {
		return c.cfg.PolitenessMin
	}
	return c.cfg.PolitenessMin + time.Duration(c.jitter(span+1))
}

// Run enriches url, retrying any error after a fixed cooldown until
// MaxAttempts is reached. Only the end of ctx stops retries early; a
// per-page deadline inside fn is an ordinary failure.
func (c *Controller) Run(ctx context.Context, url string, fn EnrichFunc) Outcome {
	log := zap.L().With(zap.String("url", url))

	retry := resilience.RetryConfig{
		MaxAttempts:    c.cfg.MaxAttempts,
		InitialBackoff: c.cfg.Cooldown,
		MaxBackoff:     c.cfg.Cooldown,
		Multiplier:     1,
		JitterFraction: 0,
		ShouldRetry:    func(error) bool { return true },
		OnRetry: func(attempt int, err error) {
			log.Warn("pipeline: enrichment failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.cfg.MaxAttempts),
				zap.String("state", string(StateRetrying)),
				zap.Duration("cooldown", c.cfg.Cooldown),
				zap.Error(err),
			)
		},
		Sleep: c.cfg.Sleep,
	}
	if retry.InitialBackoff <= 0 {
		// A zero cooldown retries immediately.
		retry.InitialBackoff = time.Nanosecond
		retry.MaxBackoff = time.Nanosecond
	}

	attempts := 0
	updates, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (map[string]string, error) {
		attempts++
		log.Debug("pipeline: enriching", zap.Int("attempt", attempts), zap.String("state", string(StateAttempting)))
		return fn(ctx, url)
	})
	if err != nil {
		log.Warn("pipeline: skipping url",
			zap.Int("attempts", attempts),
			zap.String("state", string(StateSkipped)),
			zap.Error(err),
		)
		return Outcome{State: StateSkipped, Attempts: attempts, Err: err}
	}
	return Outcome{State: StateSuccess, Attempts: attempts, Updates: updates}
}
