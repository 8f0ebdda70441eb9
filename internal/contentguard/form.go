package contentguard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Rule is the validation contract for one form field. Zero MinLength and
// MaxLength mean "no bound"; nil Pattern and Check are skipped.
type Rule struct {
	Required       bool
	MinLength      int
	MaxLength      int
	Pattern        *regexp.Regexp
	PatternMessage string
	Check          func(string) bool
	CheckMessage   string
}

// FormResult is the outcome of ValidateFormData.
type FormResult struct {
	Valid  bool              `json:"is_valid"`
	Errors map[string]string `json:"errors"`
}

// ValidateFormData validates every field that has a rule. Per field the checks
// run in order: required, min length, max length, pattern, custom check,
// malicious content. The first failure is recorded and the remaining checks
// for that field are skipped. Fields without a rule are ignored, and empty
// optional fields pass.
func ValidateFormData(data map[string]string, rules map[string]Rule) FormResult {
	errs := make(map[string]string)

	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if msg := checkField(field, data[field], rules[field]); msg != "" {
			errs[field] = msg
		}
	}

	return FormResult{Valid: len(errs) == 0, Errors: errs}
}

func checkField(field, value string, rule Rule) string {
	if rule.Required && strings.TrimSpace(value) == "" {
		return fmt.Sprintf("%s is required", field)
	}
	if value == "" {
		return ""
	}

	n := utf8.RuneCountInString(value)
	if rule.MinLength > 0 && n < rule.MinLength {
		return fmt.Sprintf("%s must be at least %d characters", field, rule.MinLength)
	}
	if rule.MaxLength > 0 && n > rule.MaxLength {
		return fmt.Sprintf("%s must be no more than %d characters", field, rule.MaxLength)
	}

	if rule.Pattern != nil && !rule.Pattern.MatchString(value) {
		if rule.PatternMessage != "" {
			return rule.PatternMessage
		}
		return fmt.Sprintf("%s format is invalid", field)
	}

	if rule.Check != nil && !rule.Check(value) {
		if rule.CheckMessage != "" {
			return rule.CheckMessage
		}
		return fmt.Sprintf("%s is invalid", field)
	}

	if DetectMaliciousContent(value) {
		return fmt.Sprintf("%s contains potentially harmful content", field)
	}

	return ""
}

// AccountResult reports registration field checks plus password strength.
type AccountResult struct {
	FormResult
	Username         string   `json:"username"`
	PasswordStrength Strength `json:"password_strength"`
}

// ValidateAccount checks registration fields the way sign-up does: the
// username is sanitized first, then username, password and role are validated.
func ValidateAccount(username, password, role string) AccountResult {
	clean := Sanitize(username)

	res := ValidateFormData(
		map[string]string{"username": clean, "password": password, "role": role},
		map[string]Rule{
			"username": {
				Required:     true,
				Check:        ValidateUsername,
				CheckMessage: "Username must be 3-30 characters and contain only letters, numbers, and underscores",
			},
			"password": {
				Required:     true,
				Check:        ValidatePassword,
				CheckMessage: "Password must be 6-50 characters and contain both letters and numbers",
			},
			"role": {
				Required:     true,
				Check:        ValidateRole,
				CheckMessage: "Invalid role selected",
			},
		},
	)

	return AccountResult{
		FormResult:       res,
		Username:         clean,
		PasswordStrength: PasswordStrength(password),
	}
}
