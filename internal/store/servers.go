package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheGojiOG/athena/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a server or modpack id does not exist.
var ErrNotFound = errors.New("not found")

// ServerStore persists server and modpack records.
type ServerStore struct {
	db *sql.DB
}

func NewServerStore(db *sql.DB) *ServerStore {
	return &ServerStore{db: db}
}

const serverColumns = `
	s.id, s.name, s.port, s.fps_limit, s.world, s.extra_flags, s.created_at, s.updated_at,
	m.id, m.name, m.description, m.source_kind, m.source_value, m.created_at
`

const serverFrom = `
	FROM servers s
	LEFT JOIN modpacks m ON m.id = s.modpack_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.ServerInstance, error) {
	srv := &models.ServerInstance{}
	var flagsJSON string
	var modID, modName, modDesc, modKind, modValue sql.NullString
	var modCreated sql.NullTime

	if err := row.Scan(
		&srv.ID, &srv.Name, &srv.Port, &srv.LimitFPS, &srv.World, &flagsJSON, &srv.CreatedAt, &srv.UpdatedAt,
		&modID, &modName, &modDesc, &modKind, &modValue, &modCreated,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(flagsJSON), &srv.ExtraFlags); err != nil {
		return nil, fmt.Errorf("failed to decode extra_flags for server %s: %w", srv.ID, err)
	}
	if srv.ExtraFlags == nil {
		srv.ExtraFlags = []string{}
	}

	if modID.Valid {
		mod := &models.Modpack{
			ID:        modID.String,
			Name:      modName.String,
			Source:    models.ModpackSource{Kind: models.ModpackSourceKind(modKind.String), Value: modValue.String},
			CreatedAt: modCreated.Time,
		}
		if modDesc.Valid && modDesc.String != "" {
			desc := modDesc.String
			mod.Description = &desc
		}
		srv.Modpack = mod
	}

	return srv, nil
}

// List returns every server ordered by creation time.
func (s *ServerStore) List() ([]*models.ServerInstance, error) {
	rows, err := s.db.Query("SELECT " + serverColumns + serverFrom + " ORDER BY s.created_at, s.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	servers := make([]*models.ServerInstance, 0)
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// Get returns a snapshot of one server, or ErrNotFound.
func (s *ServerStore) Get(id string) (*models.ServerInstance, error) {
	row := s.db.QueryRow("SELECT "+serverColumns+serverFrom+" WHERE s.id = ?", id)
	srv, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return srv, nil
}

// Create assigns an id and stores srv. modpackID, when set, must name an existing modpack.
func (s *ServerStore) Create(srv *models.ServerInstance, modpackID *string) (*models.ServerInstance, error) {
	srv.ID = uuid.New().String()
	if srv.World == "" {
		srv.World = models.DefaultWorld
	}
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}
	srv.UpdatedAt = srv.CreatedAt

	flagsJSON, err := encodeFlags(srv.ExtraFlags)
	if err != nil {
		return nil, err
	}

	modpack, err := s.lookupModpack(modpackID)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(`
		INSERT INTO servers (id, name, port, fps_limit, world, extra_flags, modpack_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, srv.ID, srv.Name, srv.Port, srv.LimitFPS, srv.World, flagsJSON, nullableID(modpack), srv.CreatedAt, srv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert server: %w", err)
	}

	srv.Modpack = modpack
	return srv, nil
}

// Update applies req to the stored server and returns the new snapshot.
// An empty modpack_id detaches the modpack.
func (s *ServerStore) Update(id string, req models.UpdateServerRequest) (*models.ServerInstance, error) {
	srv, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if err := req.Apply(srv); err != nil {
		return nil, err
	}

	if req.ModpackID != nil {
		if *req.ModpackID == "" {
			srv.Modpack = nil
		} else {
			modpack, err := s.lookupModpack(req.ModpackID)
			if err != nil {
				return nil, err
			}
			srv.Modpack = modpack
		}
	}

	flagsJSON, err := encodeFlags(srv.ExtraFlags)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(`
		UPDATE servers
		SET name = ?, port = ?, fps_limit = ?, world = ?, extra_flags = ?, modpack_id = ?, updated_at = ?
		WHERE id = ?
	`, srv.Name, srv.Port, srv.LimitFPS, srv.World, flagsJSON, nullableID(srv.Modpack), srv.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update server %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return srv, nil
}

// Delete removes a server record. Files on disk are left in place.
func (s *ServerStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ServerStore) lookupModpack(id *string) (*models.Modpack, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	modpack, err := s.GetModpack(*id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("modpack %s: %w", *id, ErrNotFound)
		}
		return nil, err
	}
	return modpack, nil
}

func encodeFlags(flags []string) (string, error) {
	if flags == nil {
		flags = []string{}
	}
	data, err := json.Marshal(flags)
	if err != nil {
		return "", fmt.Errorf("failed to encode extra_flags: %w", err)
	}
	return string(data), nil
}

func nullableID(m *models.Modpack) any {
	if m == nil {
		return nil
	}
	return m.ID
}
