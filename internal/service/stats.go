package service

import (
	"context"
	"time"

	"github.com/LeventeLantos/message-scheduler/internal/model"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 366
)

// Stats derives the daily counters from completed sends.
//
// groupsMessaged is bumped once per successful recipient of a group fanout,
// not once per broadcast.
type Stats struct {
	repo repo.StatsRepository
	loc  *time.Location
	now  func() time.Time
}

func NewStats(r repo.StatsRepository, loc *time.Location) *Stats {
	if loc == nil {
		loc = time.Local
	}
	return &Stats{repo: r, loc: loc, now: time.Now}
}

func (s *Stats) RecordSend(ctx context.Context, isGroupFanout bool) error {
	return s.repo.IncrementDaily(ctx, s.Today(), isGroupFanout)
}

// Today is the calendar day, in the configured zone, that sends count toward.
func (s *Stats) Today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// Recent returns up to days rows, newest first.
func (s *Stats) Recent(ctx context.Context, days int) ([]model.DailyStat, error) {
	if days <= 0 {
		days = defaultStatsDays
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}
	return s.repo.ListDaily(ctx, days)
}

func (s *Stats) Reset(ctx context.Context) error {
	return s.repo.ResetDaily(ctx)
}
