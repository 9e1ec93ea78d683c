package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestMaskSensitiveString(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "empty", in: "", expected: ""},
		{name: "short", in: "abc", expected: "***"},
		{name: "eight chars", in: "12345678", expected: "********"},
		{name: "api key", in: "sk-1234567890abcd", expected: "sk-1*********abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskSensitiveString(tt.in); got != tt.expected {
				t.Errorf("MaskSensitiveString(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestNewLogger_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "warn", "json")

	l.Info("hidden")
	l.Warn("shown", "conversationID", "c1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"conversationID":"c1"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestGetLogger_NotNil(t *testing.T) {
	if GetLogger() == nil {
		t.Fatalf("GetLogger() returned nil")
	}
}
