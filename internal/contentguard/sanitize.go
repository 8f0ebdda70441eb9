package contentguard

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// tagNamePattern pulls the element name out of a tag-like substring.
var tagNamePattern = regexp.MustCompile(`^</?\s*([A-Za-z][A-Za-z0-9]*)`)

// escaper replaces in a single pass, so '&' is never re-escaped inside the
// entities produced for the other characters.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
)

// Sanitize strips tag-like substrings, entity-escapes & < > " ' / \ and trims
// surrounding whitespace. It is not idempotent: escaping twice escapes the
// ampersands of the first pass.
func Sanitize(text string) string {
	stripped := tagPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(escaper.Replace(stripped))
}

// SanitizeValue sanitizes v if it is a string and returns "" otherwise.
func SanitizeValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Sanitize(s)
}

// SanitizationResult is the outcome of guarding a single field.
type SanitizationResult struct {
	Value    string `json:"value"`
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

// SanitizeField rejects malicious input and sanitizes everything else.
// A rejected result always has an empty Value.
func SanitizeField(text string) SanitizationResult {
	for _, s := range signatures {
		if s.re.MatchString(text) {
			return SanitizationResult{
				Rejected: true,
				Reason:   "potentially harmful content: " + s.Label,
			}
		}
	}
	return SanitizationResult{Value: Sanitize(text)}
}

// SanitizeWithAllowlist rejects malicious input outright by returning "".
// Otherwise it removes every tag whose name is not in allowedTags and escapes
// the rest, so allowed tags survive only in escaped form.
func SanitizeWithAllowlist(text string, allowedTags ...string) string {
	if DetectMaliciousContent(text) {
		return ""
	}

	if len(allowedTags) == 0 {
		return Sanitize(text)
	}

	allowed := make(map[string]struct{}, len(allowedTags))
	for _, t := range allowedTags {
		allowed[strings.ToLower(t)] = struct{}{}
	}

	kept := tagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		m := tagNamePattern.FindStringSubmatch(tag)
		if m == nil {
			return ""
		}
		if _, ok := allowed[strings.ToLower(m[1])]; ok {
			return tag
		}
		return ""
	})

	return strings.TrimSpace(escaper.Replace(kept))
}
