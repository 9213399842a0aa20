package server

import (
	"fmt"
	"os"
	"strings"

	"github.com/TheGojiOG/athena/internal/config"
)

const (
	installLogName       = "steamcmd.log"
	installStderrLogName = "steamcmd.stderr.log"
	serverLogName        = "server.log"
	serverStderrLogName  = "server.stderr.log"
)

// Roots are the per-purpose directories every server is namespaced under.
type Roots struct {
	Installs string
	Profiles string
	Logs     string
}

// RootsFromConfig reads the storage roots from the daemon config.
func RootsFromConfig(cfg config.StorageConfig) Roots {
	return Roots{
		Installs: cfg.InstallsRoot,
		Profiles: cfg.ProfilesRoot,
		Logs:     cfg.LogsRoot,
	}
}

// PathResolver maps a server id to its directories.
type PathResolver struct {
	roots Roots
}

func NewPathResolver(roots Roots) *PathResolver {
	return &PathResolver{
		roots: Roots{
			Installs: trimRoot(roots.Installs),
			Profiles: trimRoot(roots.Profiles),
			Logs:     trimRoot(roots.Logs),
		},
	}
}

// Resolve returns root + "/" + id for each root. The id is not escaped or
// validated, and nothing touches the filesystem.
func (r *PathResolver) Resolve(id string) Paths {
	return Paths{
		Install:  r.roots.Installs + "/" + id,
		Profiles: r.roots.Profiles + "/" + id,
		Logs:     r.roots.Logs + "/" + id,
	}
}

// Paths are the derived directories of one server.
type Paths struct {
	Install  string `json:"install"`
	Profiles string `json:"profiles"`
	Logs     string `json:"logs"`
}

// Ensure creates all three directories and any missing ancestors.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Install, p.Profiles, p.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (p Paths) InstallLog() string       { return p.Logs + "/" + installLogName }
func (p Paths) InstallStderrLog() string { return p.Logs + "/" + installStderrLogName }
func (p Paths) ServerLog() string        { return p.Logs + "/" + serverLogName }
func (p Paths) ServerStderrLog() string  { return p.Logs + "/" + serverStderrLogName }

// "/srv/" and "/" resolve like "/srv" and "".
func trimRoot(root string) string {
	return strings.TrimRight(root, "/")
}
