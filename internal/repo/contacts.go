package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

const contactColumns = `c.id, c.name, c.phone, c.group_id, c.created_at, COALESCE(g.name, '')`

func (s *Store) AddContact(ctx context.Context, c model.Contact) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO contacts (name, phone, group_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), c.Name, c.Phone, c.GroupID, now()).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: phone %s already exists", ErrDuplicate, c.Phone)
		}
		return 0, err
	}
	return id, nil
}

func (s *Store) UpdateContact(ctx context.Context, c model.Contact) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE contacts SET name = ?, phone = ?, group_id = ? WHERE id = ?
	`), c.Name, c.Phone, c.GroupID, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: phone %s already exists", ErrDuplicate, c.Phone)
		}
		return err
	}
	return expectAffected(res)
}

func (s *Store) DeleteContact(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM contacts WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) GetContact(ctx context.Context, id int64) (model.Contact, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+contactColumns+`
		FROM contacts c LEFT JOIN groups g ON c.group_id = g.id
		WHERE c.id = ?
	`), id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Contact{}, ErrNotFound
	}
	return c, err
}

func (s *Store) ListContacts(ctx context.Context) ([]model.Contact, error) {
	return s.queryContacts(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c LEFT JOIN groups g ON c.group_id = g.id
		ORDER BY c.name ASC, c.id ASC
	`)
}

// ContactsByGroup reads current membership; callers get whoever is in the
// group at the time of the call.
func (s *Store) ContactsByGroup(ctx context.Context, groupID int64) ([]model.Contact, error) {
	return s.queryContacts(ctx, `
		SELECT `+contactColumns+`
		FROM contacts c LEFT JOIN groups g ON c.group_id = g.id
		WHERE c.group_id = ?
		ORDER BY c.id ASC
	`, groupID)
}

func (s *Store) AssignGroup(ctx context.Context, contactIDs []int64, groupID *int64) (int64, error) {
	if len(contactIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(contactIDs)+1)
	args = append(args, groupID)
	for _, id := range contactIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(contactIDs)), ",")

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE contacts SET group_id = ? WHERE id IN (`+placeholders+`)`), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanContacts rewrites every phone through normalize. Contacts whose phone
// is rejected are deleted (cleaned); contacts whose normalized phone repeats
// an older contact's are deleted (duplicates). Oldest id wins.
func (s *Store) CleanContacts(ctx context.Context, normalize func(string) (string, bool)) (int, int, error) {
	var cleaned, duplicates int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, phone FROM contacts ORDER BY id ASC`)
		if err != nil {
			return err
		}
		type fix struct {
			id    int64
			phone string
		}
		var (
			drop    []int64
			updates []fix
			seen    = map[string]bool{}
		)
		for rows.Next() {
			var id int64
			var phone string
			if err := rows.Scan(&id, &phone); err != nil {
				rows.Close()
				return err
			}
			norm, ok := normalize(phone)
			switch {
			case !ok:
				drop = append(drop, id)
				cleaned++
			case seen[norm]:
				drop = append(drop, id)
				duplicates++
			default:
				seen[norm] = true
				if norm != phone {
					updates = append(updates, fix{id: id, phone: norm})
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range drop {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM contacts WHERE id = ?`), id); err != nil {
				return err
			}
		}
		for _, u := range updates {
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE contacts SET phone = ? WHERE id = ?`), u.phone, u.id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return cleaned, duplicates, nil
}

func (s *Store) queryContacts(ctx context.Context, query string, args ...any) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanContact(r rowScanner) (model.Contact, error) {
	var (
		c       model.Contact
		groupID sql.NullInt64
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Phone, &groupID, &c.CreatedAt, &c.GroupName); err != nil {
		return model.Contact{}, err
	}
	c.GroupID = nullableID(groupID)
	return c, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
