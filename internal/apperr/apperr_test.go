package apperr

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(Config, "config", io.EOF), ExitConfig},
		{"source", New(SourceUnavailable, "fetch", io.EOF), ExitUpstream},
		{"unauthorized", New(Unauthorized, "likes", io.EOF), ExitUpstream},
		{"render", New(RenderFailure, "render", io.EOF), ExitRender},
		{"state", New(StateCorrupt, "state.load", io.EOF), ExitStateCorrupt},
		{"plain", io.EOF, ExitFailure},
		{"wrapped", fmt.Errorf("run: %w", New(Unauthorized, "likes", nil)), ExitUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	err := ForItem(SourceUnavailable, "likes", "abc123", errors.New("status 503"))
	msg := err.Error()
	for _, want := range []string{"likes", "abc123", "status 503", "source unavailable"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	err := New(StateCorrupt, "state.load", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected errors.Is to see the wrapped cause")
	}
	if !Is(err, StateCorrupt) {
		t.Error("expected Is(StateCorrupt)")
	}
	if Is(nil, StateCorrupt) {
		t.Error("nil error must not match any kind")
	}
}
