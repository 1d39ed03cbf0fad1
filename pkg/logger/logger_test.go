package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("member_id", "m1").Msg("instalment approved")

	out := buf.String()
	if !strings.Contains(out, "instalment approved") || !strings.Contains(out, `"member_id":"m1"`) {
		t.Errorf("Unexpected log output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":  zerolog.DebugLevel,
		" WARN ": zerolog.WarnLevel,
		"":       zerolog.InfoLevel,
		"chatty": zerolog.InfoLevel,
		"error":  zerolog.ErrorLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	l := FromContext(ctx)
	l.Info().Msg("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("Expected context logger to be used, got %q", buf.String())
	}

	nop := FromContext(context.Background())
	if nop.GetLevel() != zerolog.Disabled {
		t.Errorf("Expected disabled logger without context, got %s", nop.GetLevel())
	}
}
