package db

import (
	"database/sql"

	"github.com/storynest/storynest/internal/models"
)

const parentColumns = `id, name, email, created_at, updated_at, sync_status`

func scanParent(row rowScanner) (*models.Parent, error) {
	var p models.Parent
	var email sql.NullString
	err := row.Scan(&p.ID, &p.Name, &email, &p.CreatedAt, &p.UpdatedAt, &p.SyncStatus)
	if err != nil {
		return nil, err
	}
	p.Email = email.String
	return &p, nil
}

// UpsertParent inserts or replaces a parent row by id.
func (s *Store) UpsertParent(p *models.Parent) error {
	query := `
	INSERT INTO parents (id, name, email, created_at, updated_at, sync_status)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		email = excluded.email,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		sync_status = excluded.sync_status
	`
	_, err := s.db.Exec(query, p.ID, p.Name, p.Email, p.CreatedAt, p.UpdatedAt, p.SyncStatus)
	if err != nil {
		return cacheErr("failed to upsert parent", err)
	}
	s.notifier.notify(models.Parent{}.TableName())
	return nil
}

// GetParent retrieves a parent by id, (nil, nil) when absent.
func (s *Store) GetParent(id models.ID) (*models.Parent, error) {
	query := `SELECT ` + parentColumns + ` FROM parents WHERE id = ?`
	p, err := scanParent(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cacheErr("failed to get parent", err)
	}
	return p, nil
}

// ListParentsPendingSync returns parents still awaiting propagation.
func (s *Store) ListParentsPendingSync() ([]*models.Parent, error) {
	query := `SELECT ` + parentColumns + ` FROM parents WHERE sync_status != 'synced' ORDER BY created_at, id`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, cacheErr("failed to list pending parents", err)
	}
	defer rows.Close()

	var parents []*models.Parent
	for rows.Next() {
		p, err := scanParent(rows)
		if err != nil {
			return nil, cacheErr("failed to scan parent", err)
		}
		parents = append(parents, p)
	}
	if err := rows.Err(); err != nil {
		return nil, cacheErr("failed to iterate parents", err)
	}
	return parents, nil
}

// SetParentSyncStatus rewrites only the sync tag of a parent row.
func (s *Store) SetParentSyncStatus(id models.ID, status models.SyncStatus) error {
	_, err := s.db.Exec(`UPDATE parents SET sync_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return cacheErr("failed to set parent sync status", err)
	}
	s.notifier.notify(models.Parent{}.TableName())
	return nil
}
