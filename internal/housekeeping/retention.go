package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Purger deletes finished queue entries last updated before a cutoff.
type Purger interface {
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)
}

// Retention periodically removes sent and failed entries older than the
// configured number of days. Pending and processing entries are never touched.
type Retention struct {
	purger Purger
	keep   time.Duration
	spec   string // cron expression
	loc    *time.Location
	log    zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewRetention(p Purger, days int, spec string, loc *time.Location, log zerolog.Logger) (*Retention, error) {
	if days < 0 {
		return nil, errors.New("retention days must be >= 0")
	}
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Retention{
		purger: p,
		keep:   time.Duration(days) * 24 * time.Hour,
		spec:   spec,
		loc:    loc,
		log:    log.With().Str("component", "retention").Logger(),
		now:    time.Now,
	}, nil
}

// Enabled is false when retention is configured as 0 days.
func (r *Retention) Enabled() bool { return r.keep > 0 }

func (r *Retention) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.c != nil || !r.Enabled() {
		return
	}
	r.c = cron.New(cron.WithParser(parser), cron.WithLocation(r.loc))
	// The schedule was validated in NewRetention.
	_, _ = r.c.AddFunc(r.spec, func() {
		if _, err := r.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
			r.log.Error().Err(err).Msg("retention purge failed")
		}
	})
	r.c.Start()
	r.log.Info().Str("schedule", r.spec).Str("keep", r.keep.String()).Msg("retention started")
}

func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.c == nil {
		return
	}
	<-r.c.Stop().Done()
	r.c = nil
	r.log.Info().Msg("retention stopped")
}

// PurgeOnce removes finished entries older than the retention window.
func (r *Retention) PurgeOnce(ctx context.Context) (int64, error) {
	if !r.Enabled() {
		return 0, nil
	}
	cutoff := r.now().Add(-r.keep)
	n, err := r.purger.PurgeFinished(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.log.Info().Int64("removed", n).Time("before", cutoff).Msg("finished entries purged")
	return n, nil
}
