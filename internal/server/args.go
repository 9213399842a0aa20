package server

import (
	"strconv"
	"strings"

	"github.com/TheGojiOG/athena/internal/models"
)

// ArgKind records where an argument value came from.
type ArgKind int

const (
	// Trusted values are produced by the daemon itself.
	Trusted ArgKind = iota
	// Untrusted values are operator supplied and passed through verbatim.
	Untrusted
	// Secret values are passed to the process but never logged.
	Secret
)

// Arg is one element of a process argument list. Arguments go straight to
// exec and are never interpreted by a shell.
type Arg struct {
	Value string
	Kind  ArgKind
}

func trusted(v string) Arg   { return Arg{Value: v, Kind: Trusted} }
func untrusted(v string) Arg { return Arg{Value: v, Kind: Untrusted} }
func secret(v string) Arg    { return Arg{Value: v, Kind: Secret} }

// SteamCredentials are passed to steamcmd +login.
type SteamCredentials struct {
	Username string
	Password string
}

// LaunchArgs builds the server binary's argument list: the five fixed flags
// in order, then the extra flags as stored.
func LaunchArgs(srv *models.ServerInstance, profilesPath string) []Arg {
	args := make([]Arg, 0, 5+len(srv.ExtraFlags))
	args = append(args,
		trusted("-name=main"),
		trusted("-port="+strconv.Itoa(srv.Port)),
		trusted("-limitFPS="+strconv.Itoa(srv.LimitFPS)),
		untrusted("-world="+srv.World),
		trusted("-profiles="+profilesPath),
	)
	for _, flag := range srv.ExtraFlags {
		args = append(args, untrusted(flag))
	}
	return args
}

// InstallArgs builds the steamcmd argument list for an install or update.
func InstallArgs(installPath string, creds SteamCredentials, appID string) []Arg {
	return []Arg{
		trusted("+force_install_dir"),
		trusted(installPath),
		trusted("+login"),
		untrusted(creds.Username),
		secret(creds.Password),
		trusted("+app_update"),
		trusted(appID),
		trusted("validate"),
		trusted("+quit"),
	}
}

// Strings flattens args for exec.Command.
func Strings(args []Arg) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg.Value
	}
	return out
}

// Redact renders args for logs with secrets masked and untrusted values quoted.
func Redact(args []Arg) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		switch arg.Kind {
		case Secret:
			parts[i] = "****"
		case Untrusted:
			parts[i] = strconv.Quote(arg.Value)
		default:
			parts[i] = arg.Value
		}
	}
	return strings.Join(parts, " ")
}
