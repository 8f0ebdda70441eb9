package api

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// newEvent starts a guard event for the authenticated caller.
func (d *Dependencies) newEvent(r *http.Request, kind string) *storage.GuardEvent {
	e := &storage.GuardEvent{
		RequestID: uuid.NewString(),
		Timestamp: time.Now(),
		Kind:      kind,
		Outcome:   storage.OutcomeAccepted,
		Source:    "http",
	}
	if c := auth.FromContext(r.Context()); c != nil {
		e.ClientID = c.ClientID
	}
	return e
}

// emit stamps latency, exposes the request ID and hands the event to the
// writer. Call before writing the response body.
func (d *Dependencies) emit(w http.ResponseWriter, e *storage.GuardEvent, start time.Time) {
	e.Finish(start)
	w.Header().Set("X-Request-Id", e.RequestID)
	if d.Writer != nil {
		d.Writer.Write(e)
	}
}

// handleSanitize implements POST /v1/content/sanitize.
func (d *Dependencies) handleSanitize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SanitizeReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	matches := contentguard.Scan(req.Text)
	res := contentguard.SanitizeField(req.Text)
	if req.UseAllowlist && !res.Rejected {
		res.Value = contentguard.SanitizeWithAllowlist(req.Text, auth.FromContext(r.Context()).Policy.Tags()...)
	}
	d.Metrics.ObserveContent(storage.KindSanitize, res.Rejected, matches)

	event := d.newEvent(r, storage.KindSanitize)
	event.SetInput(req.Text)
	event.SetMatches(matches)
	d.emit(w, event, start)

	if matches == nil {
		matches = []contentguard.Match{}
	}
	writeJSON(w, http.StatusOK, SanitizeResp{
		SanitizationResult: res,
		Matches:            matches,
		RequestID:          event.RequestID,
	})
}

// handleValidateForm implements POST /v1/content/validate.
func (d *Dependencies) handleValidateForm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ValidateFormReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "rules must declare 1-100 fields with non-negative lengths"})
		return
	}

	rules, err := compileRules(req.Rules)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}

	result := contentguard.ValidateFormData(req.Fields, rules)

	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	var matches []contentguard.Match
	var input strings.Builder
	for _, f := range fields {
		matches = append(matches, contentguard.Scan(req.Fields[f])...)
		input.WriteString(req.Fields[f])
		input.WriteByte('\n')
	}
	d.Metrics.ObserveContent(storage.KindValidate, !result.Valid, matches)

	event := d.newEvent(r, storage.KindValidate)
	event.SetInput(input.String())
	event.SetMatches(matches)
	if !result.Valid {
		event.Outcome = storage.OutcomeRejected
		if event.Reason == "" {
			event.Reason = firstError(result.Errors)
		}
	}
	d.emit(w, event, start)

	writeJSON(w, http.StatusOK, ValidateFormResp{FormResult: result, RequestID: event.RequestID})
}

// compileRules turns JSON rules into contentguard rules. Patterns use RE2 syntax.
func compileRules(in map[string]RuleReq) (map[string]contentguard.Rule, error) {
	out := make(map[string]contentguard.Rule, len(in))
	for field, rr := range in {
		if rr.MaxLength > 0 && rr.MinLength > rr.MaxLength {
			return nil, fmt.Errorf("rule for %s: min_length exceeds max_length", field)
		}
		rule := contentguard.Rule{
			Required:       rr.Required,
			MinLength:      rr.MinLength,
			MaxLength:      rr.MaxLength,
			PatternMessage: rr.PatternMessage,
		}
		if rr.Pattern != "" {
			re, err := regexp.Compile(rr.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule for %s: invalid pattern", field)
			}
			rule.Pattern = re
		}
		out[field] = rule
	}
	return out, nil
}

// firstError returns the message of the alphabetically first failing field.
func firstError(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return ""
	}
	return errs[keys[0]]
}

// handleValidateAccount implements POST /v1/accounts/validate. The password
// is never recorded.
func (d *Dependencies) handleValidateAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AccountReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	result := contentguard.ValidateAccount(req.Username, req.Password, req.Role)
	matches := contentguard.Scan(req.Username)
	d.Metrics.ObserveContent(storage.KindAccount, !result.Valid, matches)

	event := d.newEvent(r, storage.KindAccount)
	event.SetInput(req.Username)
	event.SetMatches(matches)
	if !result.Valid {
		event.Outcome = storage.OutcomeRejected
		if event.Reason == "" {
			event.Reason = firstError(result.Errors)
		}
	}
	d.emit(w, event, start)

	writeJSON(w, http.StatusOK, AccountResp{AccountResult: result, RequestID: event.RequestID})
}

// handleValidatePost implements POST /v1/posts/validate with the client's
// post length limits.
func (d *Dependencies) handleValidatePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req PostReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	lim := auth.FromContext(r.Context()).Policy.EffectivePostLimits(d.PostLimits)
	result := contentguard.PreparePost(contentguard.PostInput{
		Title:   req.Title,
		Summary: req.Summary,
		Author:  req.Author,
		Rating:  req.Rating,
	}, lim)

	matches := append(contentguard.Scan(req.Title), contentguard.Scan(req.Summary)...)
	d.Metrics.ObserveContent(storage.KindPost, !result.Valid, matches)

	event := d.newEvent(r, storage.KindPost)
	event.SetInput(req.Title + "\n" + req.Summary)
	event.SetMatches(matches)
	if !result.Valid {
		event.Outcome = storage.OutcomeRejected
		if event.Reason == "" {
			event.Reason = firstError(result.Errors)
		}
	}
	d.emit(w, event, start)

	writeJSON(w, http.StatusOK, PostResp{PostResult: result, RequestID: event.RequestID})
}
