package redact

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

func TestMask(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "ada lovelace", "ada lovelace"},
		{"email", "ada@example.com", "***"},
		{"email in sentence", "contact ada@example.com today", "contact *** today"},
		{"password kv", "password=hunter2", "password=***"},
		{"token kv with colon", "api_key: sk-12345", "api_key: ***"},
		{"kv case insensitive", "PASSWORD=hunter2", "PASSWORD=***"},
		{"bearer token", "Bearer abc.def.ghi", "Bearer ***"},
		{"luhn valid card", "4111111111111111", "***"},
		{"luhn invalid run", "4111111111111112", "4111111111111112"},
		{"long numeric id", "1234567890123456789", "1234567890123456789"},
		{"card in text", "paid with 4111111111111111 yesterday", "paid with *** yesterday"},
		{"short digit run", "123456789012", "123456789012"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mask(tt.in); got != tt.want {
				t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValue(t *testing.T) {
	now := time.Now()

	if got := Value("ada@example.com"); got != "***" {
		t.Errorf("string value = %v, want ***", got)
	}
	if got := Value([]byte("password=x")); !bytes.Equal(got.([]byte), []byte("password=***")) {
		t.Errorf("byte value = %q", got)
	}
	if got := Value(int64(42)); got != int64(42) {
		t.Errorf("int64 changed: %v", got)
	}
	if got := Value(true); got != true {
		t.Errorf("bool changed: %v", got)
	}
	if got := Value(now); got != now {
		t.Errorf("time changed: %v", got)
	}
	if got := Value(nil); got != nil {
		t.Errorf("nil changed: %v", got)
	}
}

func TestParams(t *testing.T) {
	in := []any{"ada@example.com", int64(7)}
	got := Params(in)

	want := []any{"***", int64(7)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Params = %v, want %v", got, want)
	}
	if in[0] != "ada@example.com" {
		t.Errorf("input slice was modified: %v", in)
	}

	if Params(nil) != nil {
		t.Error("Params(nil) should be nil")
	}
}
