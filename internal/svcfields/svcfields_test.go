package svcfields

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pkt.systems/pslog"
)

func TestSubsystemSkipsEmptyParts(t *testing.T) {
	if got := Subsystem("", "stocks.", " store ", "."); got != "stocks.store" {
		t.Fatalf("Subsystem = %q", got)
	}
	if got := Subsystem(); got != "" {
		t.Fatalf("Subsystem() = %q", got)
	}
}

func TestWithSubsystemTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := pslog.NewStructured(context.Background(), &buf)
	WithTransport(WithSubsystem(logger, "api.http."), "http").Info("hello")
	out := buf.String()
	if !strings.Contains(out, "api.http") || !strings.Contains(out, "http") {
		t.Fatalf("missing fields in %q", out)
	}
	if WithSubsystem(nil, "x") == nil {
		t.Fatal("nil logger should fall back to noop")
	}
}
