package server

import (
	"reflect"
	"strings"
	"testing"

	"github.com/TheGojiOG/athena/internal/models"
)

func TestLaunchArgsOrderAndLength(t *testing.T) {
	cases := [][]string{
		nil,
		{"-mod=@cba"},
		{"-autoInit", "-mod=@cba;@ace", "-serverMod=@x", "; rm -rf /"},
	}

	for _, extra := range cases {
		srv := &models.ServerInstance{ID: "x", Port: 2402, LimitFPS: 120, World: "stratis", ExtraFlags: extra}
		args := Strings(LaunchArgs(srv, "/profiles/x"))

		if len(args) != 5+len(extra) {
			t.Fatalf("expected %d args, got %d (%v)", 5+len(extra), len(args), args)
		}

		head := []string{"-name=main", "-port=2402", "-limitFPS=120", "-world=stratis", "-profiles=/profiles/x"}
		if !reflect.DeepEqual(args[:5], head) {
			t.Fatalf("unexpected fixed args: %v", args[:5])
		}
		for i, flag := range extra {
			if args[5+i] != flag {
				t.Fatalf("expected extra flag %d to be %q verbatim, got %q", i, flag, args[5+i])
			}
		}
	}
}

func TestLaunchArgsEndToEndScenario(t *testing.T) {
	srv := &models.ServerInstance{
		ID:         "s1",
		Port:       2302,
		LimitFPS:   60,
		World:      "altis",
		ExtraFlags: []string{"-mod=@cba"},
	}
	paths := defaultResolver().Resolve(srv.ID)

	got := Strings(LaunchArgs(srv, paths.Profiles))
	want := []string{"-name=main", "-port=2302", "-limitFPS=60", "-world=altis", "-profiles=/var/lib/athena/profiles/s1", "-mod=@cba"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", got, want)
	}
}

func TestLaunchArgsMarksOperatorValuesUntrusted(t *testing.T) {
	srv := &models.ServerInstance{Port: 1, World: "altis", ExtraFlags: []string{"-x"}}
	args := LaunchArgs(srv, "/p")

	if args[3].Kind != Untrusted || args[5].Kind != Untrusted {
		t.Fatalf("expected world and extra flags to be untrusted: %+v", args)
	}
	if args[0].Kind != Trusted || args[4].Kind != Trusted {
		t.Fatalf("expected fixed flags to be trusted: %+v", args)
	}
}

func TestInstallArgs(t *testing.T) {
	args := InstallArgs("/var/lib/athena/servers/s1", SteamCredentials{Username: "steamuser", Password: "hunter2"}, "233780")

	want := []string{"+force_install_dir", "/var/lib/athena/servers/s1", "+login", "steamuser", "hunter2", "+app_update", "233780", "validate", "+quit"}
	if got := Strings(args); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected install args: %v", got)
	}
}

func TestRedactMasksSecrets(t *testing.T) {
	args := InstallArgs("/i", SteamCredentials{Username: "steamuser", Password: "hunter2"}, "233780")
	rendered := Redact(args)

	if strings.Contains(rendered, "hunter2") {
		t.Fatalf("expected password to be masked: %s", rendered)
	}
	if !strings.Contains(rendered, "****") || !strings.Contains(rendered, `"steamuser"`) {
		t.Fatalf("unexpected rendering: %s", rendered)
	}

	cmd := Command{Path: "/usr/games/steamcmd", Args: args}
	if strings.Contains(cmd.String(), "hunter2") {
		t.Fatalf("expected command string to be redacted: %s", cmd.String())
	}
}
