package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/model"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
)

// EnqueueRequest is a caller's schedule request. Exactly one of ContactID and
// GroupID must be set. An empty ScheduledTime means "send now".
type EnqueueRequest struct {
	ContactID      int64  `json:"contactId"`
	GroupID        int64  `json:"groupId"`
	Message        string `json:"message" validate:"required,max=4096"`
	AttachmentPath string `json:"attachmentPath" validate:"max=1024"`
	ScheduledTime  string `json:"scheduledTime"`
	DelaySeconds   *int   `json:"delaySeconds" validate:"omitempty,min=0,max=3600"`
}

type EnqueueResult struct {
	ID            int64  `json:"id"`
	ScheduledTime string `json:"scheduledTime"`
	Immediate     bool   `json:"immediate"`
}

// ParseDelay reads a delay the way form input supplies it: absent or
// non-numeric means "use the default".
func ParseDelay(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &n
}

type Queue struct {
	repo      repo.QueueRepository
	contacts  repo.ContactRepository
	groups    repo.GroupRepository
	validator *validator.Validate
	log       zerolog.Logger

	loc          *time.Location
	defaultDelay int
	now          func() time.Time
	onDue        func()
}

func NewQueue(q repo.QueueRepository, contacts repo.ContactRepository, groups repo.GroupRepository, loc *time.Location, defaultDelay int, log zerolog.Logger) *Queue {
	if loc == nil {
		loc = time.Local
	}
	if defaultDelay < 0 {
		defaultDelay = model.DefaultDelaySeconds
	}
	return &Queue{
		repo:         q,
		contacts:     contacts,
		groups:       groups,
		validator:    newValidator(),
		log:          log.With().Str("component", "queue").Logger(),
		loc:          loc,
		defaultDelay: defaultDelay,
		now:          time.Now,
	}
}

// OnDue registers a callback fired after an entry is enqueued that is already due.
func (q *Queue) OnDue(fn func()) *Queue {
	q.onDue = fn
	return q
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	if err := q.validator.Struct(&req); err != nil {
		return EnqueueResult{}, validationError(err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return EnqueueResult{}, invalid("Message is required")
	}

	target, err := q.resolveTarget(ctx, req)
	if err != nil {
		return EnqueueResult{}, err
	}

	now := q.now()
	scheduled := strings.TrimSpace(req.ScheduledTime)
	immediate := scheduled == ""
	if immediate {
		scheduled = FormatDue(now, q.loc)
	} else {
		due, err := ParseDue(scheduled, q.loc)
		if err != nil {
			return EnqueueResult{}, invalid("%v", err)
		}
		immediate = !due.After(now)
	}

	delay := q.defaultDelay
	if req.DelaySeconds != nil {
		delay = *req.DelaySeconds
	}

	id, err := q.repo.Enqueue(ctx, model.NewEntry{
		Target:         target,
		Message:        req.Message,
		AttachmentPath: strings.TrimSpace(req.AttachmentPath),
		ScheduledTime:  scheduled,
		DelaySeconds:   delay,
	})
	if err != nil {
		return EnqueueResult{}, err
	}

	q.log.Info().Int64("entry_id", id).Str("target", target.String()).Str("scheduled_time", scheduled).Msg("entry enqueued")
	if immediate && q.onDue != nil {
		q.onDue()
	}
	return EnqueueResult{ID: id, ScheduledTime: scheduled, Immediate: immediate}, nil
}

func (q *Queue) resolveTarget(ctx context.Context, req EnqueueRequest) (model.Target, error) {
	var target model.Target
	switch {
	case req.ContactID != 0 && req.GroupID != 0:
		return target, invalid("set exactly one of contactId or groupId")
	case req.ContactID != 0:
		target = model.Individual(req.ContactID)
	case req.GroupID != 0:
		target = model.GroupTarget(req.GroupID)
	default:
		return target, invalid("one of contactId or groupId is required")
	}
	if err := target.Validate(); err != nil {
		return target, invalid("%v", err)
	}

	var err error
	if target.IsGroup() {
		_, err = q.groups.GetGroup(ctx, target.ID)
	} else {
		_, err = q.contacts.GetContact(ctx, target.ID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return target, invalid("%s does not exist", target)
	}
	if err != nil {
		return target, fmt.Errorf("resolve %s: %w", target, err)
	}
	return target, nil
}

// Pending lists waiting entries in chronological order.
func (q *Queue) Pending(ctx context.Context) ([]model.Entry, error) {
	entries, err := q.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	SortByDue(entries, q.loc)
	return entries, nil
}

func (q *Queue) Get(ctx context.Context, id int64) (model.Entry, error) {
	return q.repo.GetEntry(ctx, id)
}

// Delete removes a pending entry. Entries already claimed by the scheduler
// cannot be withdrawn.
func (q *Queue) Delete(ctx context.Context, id int64) error {
	if err := q.repo.DeleteEntry(ctx, id); err != nil {
		return err
	}
	q.log.Info().Int64("entry_id", id).Msg("entry deleted")
	return nil
}

func (q *Queue) Clear(ctx context.Context) (int64, error) {
	n, err := q.repo.ClearPending(ctx)
	if err != nil {
		return 0, err
	}
	q.log.Info().Int64("removed", n).Msg("pending queue cleared")
	return n, nil
}
