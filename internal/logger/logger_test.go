package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestErrorAttrIsEmptyForNil(t *testing.T) {
	if attr := Error(nil); !attr.Equal(slog.Attr{}) {
		t.Fatalf("expected empty attr, got %v", attr)
	}
	if attr := Error(errors.New("boom")); attr.Key != "error" {
		t.Fatalf("expected error key, got %q", attr.Key)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "info")
	log.Info("stored", Key("quiz-storage"), Username(""))

	out := buf.String()
	if !strings.Contains(out, `"key":"quiz-storage"`) {
		t.Fatalf("expected key attr in %s", out)
	}
	if strings.Contains(out, "username") {
		t.Fatalf("expected empty username to be omitted, got %s", out)
	}
}
