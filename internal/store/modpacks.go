package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TheGojiOG/athena/internal/models"
	"github.com/google/uuid"
)

// CreateModpack stores a new modpack record.
func (s *ServerStore) CreateModpack(req models.CreateModpackRequest) (*models.Modpack, error) {
	if err := req.Source.Validate(); err != nil {
		return nil, err
	}

	modpack := &models.Modpack{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Source:      req.Source,
		CreatedAt:   time.Now().UTC(),
	}

	var description string
	if req.Description != nil {
		description = *req.Description
	}

	_, err := s.db.Exec(`
		INSERT INTO modpacks (id, name, description, source_kind, source_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, modpack.ID, modpack.Name, description, string(modpack.Source.Kind), modpack.Source.Value, modpack.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert modpack: %w", err)
	}

	return modpack, nil
}

// ListModpacks returns every modpack ordered by name.
func (s *ServerStore) ListModpacks() ([]*models.Modpack, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, source_kind, source_value, created_at
		FROM modpacks
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modpacks: %w", err)
	}
	defer rows.Close()

	modpacks := make([]*models.Modpack, 0)
	for rows.Next() {
		modpack, err := scanModpack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modpack: %w", err)
		}
		modpacks = append(modpacks, modpack)
	}
	return modpacks, rows.Err()
}

// GetModpack returns one modpack, or ErrNotFound.
func (s *ServerStore) GetModpack(id string) (*models.Modpack, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, source_kind, source_value, created_at
		FROM modpacks
		WHERE id = ?
	`, id)
	modpack, err := scanModpack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get modpack %s: %w", id, err)
	}
	return modpack, nil
}

func scanModpack(row rowScanner) (*models.Modpack, error) {
	modpack := &models.Modpack{}
	var description, kind string
	if err := row.Scan(&modpack.ID, &modpack.Name, &description, &kind, &modpack.Source.Value, &modpack.CreatedAt); err != nil {
		return nil, err
	}
	modpack.Source.Kind = models.ModpackSourceKind(kind)
	if description != "" {
		modpack.Description = &description
	}
	return modpack, nil
}
