package repo

import (
	"context"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

// IncrementDaily upserts the row for date, bumping messages and contacts by
// one and groups by one when isGroup is set.
func (s *Store) IncrementDaily(ctx context.Context, date string, isGroup bool) error {
	groups := 0
	if isGroup {
		groups = 1
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO daily_stats (date, messages_sent, contacts_reached, groups_messaged)
		VALUES (?, 1, 1, ?)
		ON CONFLICT (date) DO UPDATE SET
			messages_sent = daily_stats.messages_sent + 1,
			contacts_reached = daily_stats.contacts_reached + 1,
			groups_messaged = daily_stats.groups_messaged + excluded.groups_messaged
	`), date, groups)
	return err
}

func (s *Store) ListDaily(ctx context.Context, limit int) ([]model.DailyStat, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT date, messages_sent, contacts_reached, groups_messaged
		FROM daily_stats
		ORDER BY date DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.Date, &d.MessagesSent, &d.ContactsReached, &d.GroupsMessaged); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ResetDaily(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM daily_stats`)
	return err
}
