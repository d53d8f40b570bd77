package redact_test

import (
	"errors"
	"testing"

	"github.com/bdobrica/leva/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		secrets []string
		want    string
	}{
		{"bearer key", "Authorization: Bearer sk-live-12345 failed", []string{"sk-live-12345"}, "Authorization: Bearer [REDACTED] failed"},
		{"short secret ignored", "abc token", []string{"abc"}, "abc token"},
		{"two secrets", "k=key-one t=tok-two", []string{"key-one", "tok-two"}, "k=[REDACTED] t=[REDACTED]"},
		{"no secrets", "plain", nil, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.String(tt.in, tt.secrets...); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError(t *testing.T) {
	if got := redact.Error(nil, "secret"); got != "" {
		t.Errorf("expected empty string for nil error, got %q", got)
	}
	err := errors.New("dial https://host?key=hunter22: refused")
	if got := redact.Error(err, "hunter22"); got != "dial https://host?key=[REDACTED]: refused" {
		t.Errorf("unexpected redaction: %q", got)
	}
}
