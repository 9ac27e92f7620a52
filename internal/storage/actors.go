package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SearchActors returns active actors whose name contains the query,
// case-insensitively. An empty kind matches every kind.
func (s *Store) SearchActors(query, kind string, limit int) ([]ActorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	sqlQuery := `
		SELECT id, name, kind, active, created_at
		FROM actors
		WHERE active = 1 AND LOWER(name) LIKE ?`
	args := []any{pattern}
	if kind != "" {
		sqlQuery += ` AND kind = ?`
		args = append(args, kind)
	}
	sqlQuery += ` ORDER BY name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ActorRecord
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// GetActor returns one actor, active or not. Finalized submissions keep
// references to retired actors.
func (s *Store) GetActor(id string) (ActorRecord, error) {
	row := s.db.QueryRow(`SELECT id, name, kind, active, created_at FROM actors WHERE id = ?`, id)
	a, err := scanActor(row)
	if err == sql.ErrNoRows {
		return ActorRecord{}, ErrNotFound
	}
	if err != nil {
		return ActorRecord{}, err
	}
	return a, nil
}

// ImportActors upserts a catalog batch. Existing actors keep their creation
// time; name, kind and active flag are replaced.
func (s *Store) ImportActors(actors []ActorRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning actor import: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, a := range actors {
		if _, err := tx.Exec(`
			INSERT INTO actors (id, name, kind, active, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				active = excluded.active`,
			a.ID, a.Name, a.Kind, boolInt(a.Active), now,
		); err != nil {
			return fmt.Errorf("importing actor %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// DeactivateActor soft-deletes a catalog entry.
func (s *Store) DeactivateActor(id string) error {
	res, err := s.db.Exec(`UPDATE actors SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row rowScanner) (ActorRecord, error) {
	var a ActorRecord
	var active int
	var createdAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Kind, &active, &createdAt); err != nil {
		return ActorRecord{}, err
	}
	a.Active = active != 0
	var err error
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ActorRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return a, nil
}
