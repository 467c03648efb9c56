package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/cache"
	"github.com/LeventeLantos/message-scheduler/internal/channel"
	"github.com/LeventeLantos/message-scheduler/internal/metrics"
	"github.com/LeventeLantos/message-scheduler/internal/model"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
)

const defaultSendTimeout = 60 * time.Second

// QueueStore is the part of the queue the dispatcher drives.
type QueueStore interface {
	ListPending(ctx context.Context) ([]model.Entry, error)
	SetStatus(ctx context.Context, id int64, status model.Status) error
}

// Recipients resolves targets to phone numbers at dispatch time.
type Recipients interface {
	GetContact(ctx context.Context, id int64) (model.Contact, error)
	ContactsByGroup(ctx context.Context, groupID int64) ([]model.Contact, error)
}

type StatsRecorder interface {
	RecordSend(ctx context.Context, isGroupFanout bool) error
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	Due     int
	Sent    int
	Failed  int
	NotDue  int
	Stalled int
	Lost    int
}

// Dispatcher turns due pending entries into sends. Entries are claimed one at a
// time by moving them to processing, so a second pass can never pick up the
// same entry.
type Dispatcher struct {
	queue    QueueStore
	contacts Recipients
	channel  channel.Channel
	stats    StatsRecorder
	receipts cache.ReceiptCache
	metrics  *metrics.Metrics
	log      zerolog.Logger

	loc         *time.Location
	sendTimeout time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(q QueueStore, contacts Recipients, ch channel.Channel, stats StatsRecorder, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:       q,
		contacts:    contacts,
		channel:     ch,
		stats:       stats,
		receipts:    cache.Nop{},
		log:         log.With().Str("component", "dispatcher").Logger(),
		loc:         time.Local,
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func (d *Dispatcher) WithReceipts(c cache.ReceiptCache) *Dispatcher {
	if c != nil {
		d.receipts = c
	}
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

func (d *Dispatcher) WithLocation(loc *time.Location) *Dispatcher {
	if loc != nil {
		d.loc = loc
	}
	return d
}

func (d *Dispatcher) WithSendTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.sendTimeout = timeout
	}
	return d
}

// WithClock replaces the wall clock and the inter-recipient sleep.
func (d *Dispatcher) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Dispatcher {
	if now != nil {
		d.now = now
	}
	if sleep != nil {
		d.sleep = sleep
	}
	return d
}

// RunPass dispatches every pending entry whose scheduled time is at or before
// the start of the pass. Entries are handled sequentially in schedule order.
func (d *Dispatcher) RunPass(ctx context.Context) (PassReport, error) {
	var report PassReport

	entries, err := d.queue.ListPending(ctx)
	if err != nil {
		return report, fmt.Errorf("list pending: %w", err)
	}
	SortByDue(entries, d.loc)

	now := d.now()
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}

		due, err := ParseDue(e.ScheduledTime, d.loc)
		if err != nil {
			report.Stalled++
			d.log.Warn().Err(err).Int64("entry_id", e.ID).Str("scheduled_time", e.ScheduledTime).
				Msg("skipping entry with unparseable scheduled time")
			continue
		}
		if due.After(now) {
			report.NotDue++
			continue
		}
		report.Due++

		if err := d.queue.SetStatus(ctx, e.ID, model.Processing); err != nil {
			if errors.Is(err, repo.ErrInvalidTransition) || errors.Is(err, repo.ErrNotFound) {
				report.Lost++
				d.log.Debug().Int64("entry_id", e.ID).Msg("entry claimed or removed elsewhere")
				continue
			}
			d.log.Error().Err(err).Int64("entry_id", e.ID).Msg("claim entry failed")
			continue
		}

		// A claimed entry runs to completion; ctx is honoured between entries.
		dctx := context.WithoutCancel(ctx)
		status := d.dispatchSafely(dctx, e)
		d.finish(dctx, e, status)

		if status == model.Sent {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	if d.metrics != nil {
		d.metrics.StalledEntries.Set(float64(report.Stalled))
	}
	return report, nil
}

func (d *Dispatcher) dispatchSafely(ctx context.Context, e model.Entry) (status model.Status) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Int64("entry_id", e.ID).Msg("dispatch panic recovered")
			status = model.Failed
		}
	}()

	if e.Target.IsGroup() {
		return d.fanout(ctx, e)
	}
	return d.dispatchIndividual(ctx, e)
}

func (d *Dispatcher) dispatchIndividual(ctx context.Context, e model.Entry) model.Status {
	c, err := d.contacts.GetContact(ctx, e.Target.ID)
	if err != nil {
		d.log.Warn().Err(err).Int64("entry_id", e.ID).Int64("contact_id", e.Target.ID).Msg("resolve contact failed")
		return model.Failed
	}

	if err := d.sendOne(ctx, e, c.Phone); err != nil {
		d.log.Warn().Err(err).Int64("entry_id", e.ID).Int64("contact_id", c.ID).Msg("send failed")
		return model.Failed
	}

	d.recordStats(ctx, false, 1)
	return model.Sent
}

// fanout sends to every current member of the group in id order, pausing the
// entry's delay between consecutive recipients.
func (d *Dispatcher) fanout(ctx context.Context, e model.Entry) model.Status {
	members, err := d.contacts.ContactsByGroup(ctx, e.Target.ID)
	if err != nil {
		d.log.Warn().Err(err).Int64("entry_id", e.ID).Int64("group_id", e.Target.ID).Msg("resolve group failed")
		return model.Failed
	}
	if len(members) == 0 {
		d.log.Warn().Int64("entry_id", e.ID).Int64("group_id", e.Target.ID).Msg("group has no members")
		return FanoutStatus(0)
	}

	succeeded := 0
	for i, c := range members {
		if err := d.sendOne(ctx, e, c.Phone); err != nil {
			d.log.Warn().Err(err).Int64("entry_id", e.ID).Int64("contact_id", c.ID).Msg("group member send failed")
		} else {
			succeeded++
		}

		if i == len(members)-1 || e.DelaySeconds <= 0 {
			continue
		}
		if err := d.sleep(ctx, e.Delay()); err != nil {
			d.log.Warn().Err(err).Int64("entry_id", e.ID).Int("remaining", len(members)-i-1).
				Msg("fanout pause cut short")
		}
	}

	d.log.Info().Int64("entry_id", e.ID).Int("members", len(members)).Int("succeeded", succeeded).Msg("fanout complete")
	d.recordStats(ctx, true, succeeded)
	return FanoutStatus(succeeded)
}

// FanoutStatus decides a group entry's outcome: any delivered recipient makes
// it sent; none (or an empty group) makes it failed.
func FanoutStatus(succeeded int) model.Status {
	if succeeded > 0 {
		return model.Sent
	}
	return model.Failed
}

func (d *Dispatcher) sendOne(ctx context.Context, e model.Entry, phone string) error {
	sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	var (
		messageID string
		err       error
	)
	if e.AttachmentPath != "" {
		messageID, err = d.channel.SendMedia(sctx, phone, e.Message, e.AttachmentPath)
	} else {
		messageID, err = d.channel.SendText(sctx, phone, e.Message)
	}

	d.countSend(e, err)
	if err != nil {
		return err
	}

	receipt := cache.Receipt{EntryID: e.ID, Phone: phone, MessageID: messageID, SentAt: d.now().UTC()}
	if err := d.receipts.StoreReceipt(context.WithoutCancel(ctx), receipt); err != nil {
		d.log.Warn().Err(err).Int64("entry_id", e.ID).Msg("store receipt failed")
	}
	return nil
}

// finish records the terminal status of a claimed entry.
func (d *Dispatcher) finish(ctx context.Context, e model.Entry, status model.Status) {
	if err := d.queue.SetStatus(context.WithoutCancel(ctx), e.ID, status); err != nil {
		d.log.Error().Err(err).Int64("entry_id", e.ID).Str("status", string(status)).Msg("record final status failed")
	}
	if d.metrics != nil {
		d.metrics.EntriesDone.WithLabelValues(string(e.Target.Kind), string(status)).Inc()
	}
	d.log.Info().Int64("entry_id", e.ID).Str("target", e.Target.String()).Str("status", string(status)).Msg("entry finished")
}

func (d *Dispatcher) recordStats(ctx context.Context, isGroupFanout bool, n int) {
	bctx := context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		if err := d.stats.RecordSend(bctx, isGroupFanout); err != nil {
			d.log.Error().Err(err).Msg("record daily stats failed")
		}
	}
}

func (d *Dispatcher) countSend(e model.Entry, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, channel.ErrNotReady):
		result = "not_ready"
	case err != nil:
		result = "error"
	}
	d.metrics.Sends.WithLabelValues(string(e.Target.Kind), result).Inc()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
