package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid marks request validation failures.
var ErrInvalid = errors.New("invalid request")

// DefaultWorld is used when a server is created without a world selector.
const DefaultWorld = "empty"

// ModpackSourceKind identifies how a modpack's mod list is described.
type ModpackSourceKind string

const (
	// ModpackSourcePresetHTML is an Arma 3 launcher preset export.
	ModpackSourcePresetHTML ModpackSourceKind = "preset_html"
)

// ModpackSource carries the modpack payload.
type ModpackSource struct {
	Kind  ModpackSourceKind `json:"kind"`
	Value string            `json:"value"`
}

// Modpack is an optional mod collection attached to a server.
type Modpack struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Source      ModpackSource `json:"source"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ServerInstance is the unit of management. Install, profiles and logs
// directories are derived from ID and never stored.
type ServerInstance struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Port       int       `json:"port"`
	LimitFPS   int       `json:"limit_fps"`
	ExtraFlags []string  `json:"extra_flags"`
	World      string    `json:"world"`
	Modpack    *Modpack  `json:"modpack,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateServerRequest is the body of POST /servers.
type CreateServerRequest struct {
	Name       string   `json:"name" binding:"required"`
	Port       int      `json:"port" binding:"required,min=1,max=65535"`
	LimitFPS   int      `json:"limit_fps" binding:"min=0"`
	ExtraFlags []string `json:"extra_flags"`
	World      string   `json:"world"`
	ModpackID  *string  `json:"modpack_id"`
}

// UpdateServerRequest is the body of PATCH /servers/:id. Nil fields are left alone.
type UpdateServerRequest struct {
	Name       *string   `json:"name"`
	Port       *int      `json:"port"`
	LimitFPS   *int      `json:"limit_fps"`
	ExtraFlags *[]string `json:"extra_flags"`
	World      *string   `json:"world"`
	ModpackID  *string   `json:"modpack_id"`
}

// CreateModpackRequest is the body of POST /modpacks.
type CreateModpackRequest struct {
	Name        string        `json:"name" binding:"required"`
	Description *string       `json:"description"`
	Source      ModpackSource `json:"source"`
}

// NewServer builds a server record from a create request. The ID is assigned by the store.
func NewServer(req CreateServerRequest) (*ServerInstance, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalid, req.Port)
	}
	if req.LimitFPS < 0 {
		return nil, fmt.Errorf("%w: limit_fps must not be negative", ErrInvalid)
	}

	world := strings.TrimSpace(req.World)
	if world == "" {
		world = DefaultWorld
	}

	flags := req.ExtraFlags
	if flags == nil {
		flags = []string{}
	}

	now := time.Now().UTC()
	return &ServerInstance{
		Name:       name,
		Port:       req.Port,
		LimitFPS:   req.LimitFPS,
		ExtraFlags: flags,
		World:      world,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Apply copies the set fields of req onto srv. Modpack changes are resolved by the store.
func (req UpdateServerRequest) Apply(srv *ServerInstance) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return fmt.Errorf("%w: name must not be empty", ErrInvalid)
		}
		srv.Name = name
	}
	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalid, *req.Port)
		}
		srv.Port = *req.Port
	}
	if req.LimitFPS != nil {
		if *req.LimitFPS < 0 {
			return fmt.Errorf("%w: limit_fps must not be negative", ErrInvalid)
		}
		srv.LimitFPS = *req.LimitFPS
	}
	if req.ExtraFlags != nil {
		srv.ExtraFlags = append([]string{}, (*req.ExtraFlags)...)
	}
	if req.World != nil {
		srv.World = *req.World
	}
	srv.UpdatedAt = time.Now().UTC()
	return nil
}

// Validate checks a modpack source before it is stored.
func (s ModpackSource) Validate() error {
	switch s.Kind {
	case ModpackSourcePresetHTML:
		return nil
	case "":
		return fmt.Errorf("%w: modpack source kind is required", ErrInvalid)
	default:
		return fmt.Errorf("%w: unsupported modpack source kind %q", ErrInvalid, s.Kind)
	}
}
