package contentguard

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 30
	PasswordMinLength = 6
	PasswordMaxLength = 50
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateUsername accepts 3-30 letters, digits or underscores after trimming.
func ValidateUsername(s string) bool {
	trimmed := strings.TrimSpace(s)
	n := utf8.RuneCountInString(trimmed)
	if n < UsernameMinLength || n > UsernameMaxLength {
		return false
	}
	return usernamePattern.MatchString(trimmed)
}

// ValidatePassword accepts 6-50 characters containing at least one ASCII
// letter and one digit.
func ValidatePassword(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < PasswordMinLength || n > PasswordMaxLength {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

var validRoles = map[string]struct{}{
	"user":  {},
	"admin": {},
}

// ValidateRole accepts only the predefined account roles.
func ValidateRole(role string) bool {
	_, ok := validRoles[role]
	return ok
}

// ValidateContentLength reports whether the trimmed rune length of s is
// within [min, max].
func ValidateContentLength(s string, min, max int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= min && n <= max
}

// Strength is a coarse password strength rating.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// PasswordStrength scores length and character variety.
func PasswordStrength(pw string) Strength {
	if pw == "" {
		return StrengthWeak
	}

	score := 0
	n := utf8.RuneCountInString(pw)
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}

	var lower, upper, digit, other bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			score++
		}
	}

	switch {
	case score >= 5:
		return StrengthStrong
	case score >= 3:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var (
	stackLocationPattern = regexp.MustCompile(`at\s+.*?:\d+:\d+`)
	errorPrefixPattern   = regexp.MustCompile(`Error:\s*`)
	bracketPattern       = regexp.MustCompile(`\[.*?\]`)
)

const genericErrorMessage = "An error occurred"

// SanitizeErrorMessage removes stack locations, "Error:" prefixes and
// bracketed details from a message before it is shown to a user.
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return genericErrorMessage
	}
	out := stackLocationPattern.ReplaceAllString(msg, "")
	out = errorPrefixPattern.ReplaceAllString(out, "")
	out = bracketPattern.ReplaceAllString(out, "")
	out = strings.TrimFunc(out, unicode.IsSpace)
	if out == "" {
		return genericErrorMessage
	}
	return out
}

// SessionExpired reports whether more than timeout has passed since
// lastActivity. A zero lastActivity is always expired.
func SessionExpired(lastActivity, now time.Time, timeout time.Duration) bool {
	if lastActivity.IsZero() {
		return true
	}
	return now.Sub(lastActivity) > timeout
}

// SecurityHeaders returns the response headers applied to every HTTP reply.
func SecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
		"Permissions-Policy":     "geolocation=(), microphone=(), camera=()",
	}
}
