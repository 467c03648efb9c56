package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

const groupSelect = `
	SELECT g.id, g.name, g.description, g.created_at,
	       (SELECT COUNT(*) FROM contacts c WHERE c.group_id = g.id)
	FROM groups g`

func (s *Store) AddGroup(ctx context.Context, g model.Group) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO groups (name, description, created_at)
		VALUES (?, ?, ?)
		RETURNING id
	`), g.Name, g.Description, now()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: group %q already exists", ErrDuplicate, g.Name)
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (model.Group, error) {
	row := s.db.QueryRowContext(ctx, s.q(groupSelect+` WHERE g.id = ?`), id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, ErrNotFound
	}
	return g, err
}

func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, groupSelect+` ORDER BY g.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// DeleteGroup detaches the group's members before removing it; contacts are
// never deleted along with their group.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(`UPDATE contacts SET group_id = NULL WHERE group_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM groups WHERE id = ?`), id)
		if err != nil {
			return err
		}
		return expectAffected(res)
	})
}

func scanGroup(r rowScanner) (model.Group, error) {
	var g model.Group
	if err := r.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.MemberCount); err != nil {
		return model.Group{}, err
	}
	return g, nil
}
