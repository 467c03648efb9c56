package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

const entryColumns = `
	sm.id, sm.contact_id, sm.group_id, sm.message, sm.attachment_path, sm.scheduled_time,
	sm.status, sm.delay_seconds, sm.created_at, sm.updated_at,
	COALESCE(c.name, g.name, '')`

const entryFrom = `
	FROM scheduled_messages sm
	LEFT JOIN contacts c ON sm.contact_id = c.id
	LEFT JOIN groups g ON sm.group_id = g.id`

func (s *Store) Enqueue(ctx context.Context, e model.NewEntry) (int64, error) {
	if err := e.Target.Validate(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(e.Message) == "" {
		return 0, errors.New("message is required")
	}
	if e.DelaySeconds < 0 {
		return 0, errors.New("delay seconds must be >= 0")
	}

	contactID, groupID := e.Target.Columns()
	ts := now()

	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO scheduled_messages
			(contact_id, group_id, message, attachment_path, scheduled_time, status, delay_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), contactID, groupID, e.Message, e.AttachmentPath, e.ScheduledTime, string(model.Pending), e.DelaySeconds, ts, ts).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (model.Entry, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+entryColumns+entryFrom+` WHERE sm.id = ?`), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, ErrNotFound
	}
	return e, err
}

func (s *Store) ListPending(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+entryColumns+entryFrom+`
		WHERE sm.status = ?
		ORDER BY sm.scheduled_time ASC, sm.id ASC
	`), string(model.Pending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetStatus moves an entry forward in its state machine. The update is
// conditional on the current status, so two callers racing to claim the same
// pending entry cannot both win.
func (s *Store) SetStatus(ctx context.Context, id int64, status model.Status) error {
	from, ok := model.Predecessor(status)
	if !ok {
		return fmt.Errorf("%w: to %q", ErrInvalidTransition, status)
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE scheduled_messages
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), string(status), now(), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	cur, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, status)
}

func (s *Store) DeleteEntry(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scheduled_messages WHERE id = ? AND status = ?`), id, string(model.Pending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	cur, err := s.currentStatus(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: entry %d is %s", ErrNotDeletable, id, cur)
}

func (s *Store) ClearPending(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM scheduled_messages WHERE status = ?`), string(model.Pending))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeFinished removes sent/failed entries last touched before the cutoff.
func (s *Store) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		DELETE FROM scheduled_messages
		WHERE status IN (?, ?) AND updated_at < ?
	`), string(model.Sent), string(model.Failed), before.UTC().Truncate(time.Second))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) currentStatus(ctx context.Context, id int64) (model.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT status FROM scheduled_messages WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.Status(status), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (model.Entry, error) {
	var (
		e         model.Entry
		contactID sql.NullInt64
		groupID   sql.NullInt64
		status    string
	)
	if err := r.Scan(
		&e.ID,
		&contactID,
		&groupID,
		&e.Message,
		&e.AttachmentPath,
		&e.ScheduledTime,
		&status,
		&e.DelaySeconds,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.TargetName,
	); err != nil {
		return model.Entry{}, err
	}

	target, err := model.TargetFromColumns(nullableID(contactID), nullableID(groupID))
	if err != nil {
		return model.Entry{}, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Target = target
	e.Status = model.Status(status)
	return e, nil
}
