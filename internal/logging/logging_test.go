package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"trace":   zerolog.TraceLevel,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input, zerolog.InfoLevel); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewWithWriter(&buf, "warn", false), "reminder")

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"component":"reminder"`) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCronLoggerError(t *testing.T) {
	var buf bytes.Buffer
	cl := CronLogger{Log: NewWithWriter(&buf, "info", false)}

	cl.Error(errors.New("boom"), "job failed", "entry", 3)

	out := buf.String()
	if !strings.Contains(out, `"err":"boom"`) || !strings.Contains(out, `"entry":3`) {
		t.Fatalf("unexpected output: %q", out)
	}
}
