package contentguard

import (
	"regexp"
)

// Class groups signatures by the kind of payload they catch.
type Class string

const (
	ClassMarkup   Class = "markup"
	ClassScheme   Class = "scheme"
	ClassCSS      Class = "css"
	ClassCall     Class = "call"
	ClassEncoding Class = "encoding"
)

// Signature is one named pattern for a class of injection payload.
type Signature struct {
	Tag   string
	Class Class
	Label string
	re    *regexp.Regexp
}

// Match reports whether text contains this signature.
func (s Signature) Match(text string) bool {
	return s.re.MatchString(text)
}

// Pre-compiled signatures, checked in order. Adding a signature is a table
// edit; nothing else needs to change.
//
// The list is over-inclusive: benign text such as "mailto:" or
// "50%25" is rejected too.
var signatures = []Signature{
	// Markup
	{"script_tag", ClassMarkup, "script tag", regexp.MustCompile(`(?i)<script\b`)},
	{"executable_tag", ClassMarkup, "executable html tag", regexp.MustCompile(`(?i)<(object|embed|applet|meta|iframe|frame|frameset|link|style|base|form|input|textarea|select|option|img|audio|video|source|track)\b[^>]*>`)},
	{"svg_tag", ClassMarkup, "svg tag", regexp.MustCompile(`(?i)<svg\b[^>]*>`)},
	{"event_handler", ClassMarkup, "event handler attribute", regexp.MustCompile(`(?i)on\w+\s*=`)},

	// Schemes
	{"javascript_scheme", ClassScheme, "javascript: url", regexp.MustCompile(`(?i)javascript:`)},
	{"vbscript_scheme", ClassScheme, "vbscript: url", regexp.MustCompile(`(?i)vbscript:`)},
	{"data_scheme", ClassScheme, "data: url", regexp.MustCompile(`(?i)data:`)},
	{"file_scheme", ClassScheme, "file: url", regexp.MustCompile(`(?i)file:`)},
	{"ftp_scheme", ClassScheme, "ftp: url", regexp.MustCompile(`(?i)ftp:`)},
	{"mailto_scheme", ClassScheme, "mailto: url", regexp.MustCompile(`(?i)mailto:`)},

	// CSS
	{"css_expression", ClassCSS, "css expression()", regexp.MustCompile(`(?i)expression\s*\(`)},
	{"css_url_javascript", ClassCSS, "css url(javascript...)", regexp.MustCompile(`(?i)url\s*\(\s*javascript`)},
	{"css_import", ClassCSS, "css @import", regexp.MustCompile(`(?i)@import`)},

	// Calls
	{"eval_call", ClassCall, "eval()", regexp.MustCompile(`(?i)eval\s*\(`)},
	{"alert_call", ClassCall, "alert()", regexp.MustCompile(`(?i)alert\s*\(`)},
	{"confirm_call", ClassCall, "confirm()", regexp.MustCompile(`(?i)confirm\s*\(`)},
	{"prompt_call", ClassCall, "prompt()", regexp.MustCompile(`(?i)prompt\s*\(`)},
	{"set_timeout_call", ClassCall, "setTimeout()", regexp.MustCompile(`(?i)setTimeout\s*\(`)},
	{"set_interval_call", ClassCall, "setInterval()", regexp.MustCompile(`(?i)setInterval\s*\(`)},
	{"document_cookie", ClassCall, "document.cookie access", regexp.MustCompile(`(?i)document\.cookie`)},
	{"window_location", ClassCall, "window.location access", regexp.MustCompile(`(?i)window\.location`)},

	// Encoding
	{"html_entity", ClassEncoding, "numeric html entity", regexp.MustCompile(`(?i)&#x?[0-9a-f]+;`)},
	{"percent_encoding", ClassEncoding, "percent-encoded byte", regexp.MustCompile(`(?i)%[0-9a-f]{2}`)},
}

// Signatures returns a copy of the signature table in check order.
func Signatures() []Signature {
	out := make([]Signature, len(signatures))
	copy(out, signatures)
	return out
}

// Match is one signature hit reported by Scan.
type Match struct {
	Tag   string `json:"tag"`
	Class Class  `json:"class"`
	Label string `json:"label"`
}

// DetectMaliciousContent reports whether text matches any signature.
// Empty text is never malicious.
func DetectMaliciousContent(text string) bool {
	if text == "" {
		return false
	}
	for _, s := range signatures {
		if s.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Scan returns every signature that matches text, in table order.
func Scan(text string) []Match {
	if text == "" {
		return nil
	}
	var matches []Match
	for _, s := range signatures {
		if s.re.MatchString(text) {
			matches = append(matches, Match{Tag: s.Tag, Class: s.Class, Label: s.Label})
		}
	}
	return matches
}
