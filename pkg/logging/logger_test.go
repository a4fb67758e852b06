package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	l := Component("reconcile")
	l.Info().Str("run_id", "r-1").Msg("started")

	out := buf.String()
	for _, want := range []string{`"component":"reconcile"`, `"run_id":"r-1"`, `"message":"started"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestComponentChainsWithoutLocal(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Component("storage").Warn().Str("key", "gens/1/a.csv").Msg("failed to remove staged table")
	Component("auth").Debug().Msg("rejected token")

	out := buf.String()
	for _, want := range []string{`"component":"storage"`, `"level":"warn"`, `"component":"auth"`, `"level":"debug"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"WARNING":  zerolog.WarnLevel,
		"":         zerolog.InfoLevel,
		"bogus":    zerolog.InfoLevel,
		"disabled": zerolog.Disabled,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
