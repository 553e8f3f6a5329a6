package log

import (
	"bytes"
	"strings"
	"testing"
)

func newCaptureLogger(level Level) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(level),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(&buf)),
	)
	return l, &buf
}

func TestLevelGating(t *testing.T) {
	l, buf := newCaptureLogger(WarnLevel)
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	out := buf.String()
	if strings.Contains(out, "DEBUG") || strings.Contains(out, "INFO") {
		t.Fatalf("low levels not gated: %q", out)
	}
	if !strings.Contains(out, "WARN w") || !strings.Contains(out, "ERROR e") {
		t.Fatalf("missing expected lines: %q", out)
	}
}

func TestFieldsRendered(t *testing.T) {
	l, buf := newCaptureLogger(InfoLevel)
	l.Info("append", Str("group", "g1"), Int("partition", 2))
	out := buf.String()
	if !strings.Contains(out, "group=g1") || !strings.Contains(out, "partition=2") {
		t.Fatalf("fields missing: %q", out)
	}
}

func TestWithCarriesFields(t *testing.T) {
	l, buf := newCaptureLogger(InfoLevel)
	child := l.With(Component("executor"))
	child.Info("started")
	if !strings.Contains(buf.String(), "component=executor") {
		t.Fatalf("component field missing: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": DebugLevel,
		"INFO":  InfoLevel,
		"warn":  WarnLevel,
		"error": ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.Info("hello", Str("k", "v"))
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("unexpected json: %q", out)
	}
}
