package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{NewValidation("op", "bad input", nil), ErrValidation},
		{NewDB("op", "deadlock", stderrors.New("1213")), ErrDB},
		{NewExternal("op", "openai", "timeout", nil), ErrExternal},
		{NewIntegrity("op", "impossible state", nil), ErrIntegrity},
		{NewConfig("op", "missing env", nil), ErrConfig},
	}
	for _, tt := range tests {
		if !Is(tt.err, tt.kind) {
			t.Errorf("Is(%v, %T) = false", tt.err, tt.kind)
		}
	}
	if Is(NewDB("op", "x", nil), ErrValidation) {
		t.Error("cross-kind match")
	}
}

func TestWrappedMatching(t *testing.T) {
	inner := NewIntegrity("areas.validate", "inverted bounds", nil)
	wrapped := fmt.Errorf("loading config: %w", inner)
	if !Is(wrapped, ErrIntegrity) {
		t.Error("wrapped integrity error not matched")
	}
	if !IsFatal(wrapped) {
		t.Error("wrapped integrity error not fatal")
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(NewExternal("op", "http", "500", nil)) {
		t.Error("external errors must not be fatal")
	}
	if !IsFatal(NewConfig("op", "missing flag", nil)) {
		t.Error("config errors are fatal")
	}
	if IsFatal(nil) {
		t.Error("nil is not fatal")
	}
}

func TestMessagesCarryContext(t *testing.T) {
	err := NewDB("database.UpsertVenueTx", "upsert failed", stderrors.New("duplicate"))
	msg := err.Error()
	for _, want := range []string{"db:", "database.UpsertVenueTx", "upsert failed", "duplicate"} {
		if !contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
