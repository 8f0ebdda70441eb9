package contentguard

import (
	"strings"
	"testing"
	"time"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ab", false},
		{"abc", true},
		{strings.Repeat("a", 30), true},
		{strings.Repeat("a", 31), false},
		{"bad name!", false},
		{"good_name_42", true},
		{"  padded  ", true},
		{"", false},
		{"émile", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidateUsername(tt.input); got != tt.want {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"abcdef", false},
		{"123456", false},
		{"abc123", true},
		{"ab1", false},
		{strings.Repeat("a1", 25), true},
		{strings.Repeat("a1", 25) + "x", false},
		{"pass word 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidatePassword(tt.input); got != tt.want {
				t.Errorf("ValidatePassword(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateContentLength(t *testing.T) {
	if !ValidateContentLength("  hello  ", 5, 5) {
		t.Error("trimmed length 5 should be within [5,5]")
	}
	if ValidateContentLength("hi", 3, 10) {
		t.Error("length 2 should be below min 3")
	}
	if ValidateContentLength(strings.Repeat("x", 11), 3, 10) {
		t.Error("length 11 should be above max 10")
	}
	if !ValidateContentLength("héllo", 5, 5) {
		t.Error("length should count runes, not bytes")
	}
}

func TestValidateRole(t *testing.T) {
	for role, want := range map[string]bool{"user": true, "admin": true, "root": false, "": false, "Admin": false} {
		if got := ValidateRole(role); got != want {
			t.Errorf("ValidateRole(%q) = %v, want %v", role, got, want)
		}
	}
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		input string
		want  Strength
	}{
		{"", StrengthWeak},
		{"abc", StrengthWeak},
		{"abc123", StrengthWeak},
		{"abcd1234", StrengthMedium},
		{"Abcd1234", StrengthMedium},
		{"Abcd1234!", StrengthStrong},
		{"abcdefgh12345", StrengthMedium},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := PasswordStrength(tt.input); got != tt.want {
				t.Errorf("PasswordStrength(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := map[string]bool{
		"https://headspace.org.au": true,
		"http://example.com/a?b=c": true,
		"javascript:alert(1)":      false,
		"ftp://files.example.com":  false,
		"/relative/path":           false,
		"":                         false,
		"https://":                 false,
		"not a url at all":         false,
	}
	for input, want := range tests {
		if got := ValidateURL(input); got != want {
			t.Errorf("ValidateURL(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "An error occurred"},
		{"prefix", "Error: connection refused", "connection refused"},
		{"stack", "failed at handler.js:10:5", "failed"},
		{"brackets", "lookup failed [db=users host=10.0.0.1]", "lookup failed"},
		{"only noise", "Error: [internal]", "An error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeErrorMessage(tt.input); got != tt.want {
				t.Errorf("SanitizeErrorMessage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	if !SessionExpired(time.Time{}, now, 30*time.Minute) {
		t.Error("zero last activity should be expired")
	}
	if SessionExpired(now.Add(-29*time.Minute), now, 30*time.Minute) {
		t.Error("29 minutes idle should not be expired")
	}
	if !SessionExpired(now.Add(-31*time.Minute), now, 30*time.Minute) {
		t.Error("31 minutes idle should be expired")
	}
}

func TestTokens(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	if len(nonce) != 32 {
		t.Errorf("nonce length = %d, want 32", len(nonce))
	}

	tok, err := NewSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(tok) != 64 {
		t.Errorf("session token length = %d, want 64", len(tok))
	}

	a, _ := NewCSRFToken()
	b, _ := NewCSRFToken()
	if a == b {
		t.Error("csrf tokens should differ")
	}
}
