package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/chread"
)

const maxPageSize = 200

func (d *Dependencies) requireReader(w http.ResponseWriter) bool {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return false
	}
	return true
}

func requireClientID(w http.ResponseWriter, q url.Values) (string, bool) {
	id := q.Get("client_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "client_id query parameter is required"})
		return "", false
	}
	return id, true
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}
	q := r.URL.Query()
	clientID, ok := requireClientID(w, q)
	if !ok {
		return
	}

	params := chread.ListEventsParams{
		ClientID:  clientID,
		Kind:      nilIfEmpty(q.Get("kind")),
		Outcome:   nilIfEmpty(q.Get("outcome")),
		Tier:      nilIfEmpty(q.Get("tier")),
		UserID:    nilIfEmpty(q.Get("user_id")),
		Signature: nilIfEmpty(q.Get("signature")),
		Page:      max(queryInt(q, "page", 1), 1),
		PageSize:  min(max(queryInt(q, "page_size", 50), 1), maxPageSize),
	}
	var err error
	if params.StartTime, err = queryTime(q, "start_time"); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "start_time must be RFC 3339"})
		return
	}
	if params.EndTime, err = queryTime(q, "end_time"); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "end_time must be RFC 3339"})
		return
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]GuardEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}
	clientID, ok := requireClientID(w, r.URL.Query())
	if !ok {
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), clientID, r.PathValue("request_id"))
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}
	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if !d.requireReader(w) {
		return
	}
	q := r.URL.Query()
	clientID, ok := requireClientID(w, q)
	if !ok {
		return
	}
	days := min(max(queryInt(q, "days", 7), 1), 90)

	result, err := d.Reader.GetAnalytics(r.Context(), clientID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func eventRowToResp(e chread.EventRow) GuardEventResp {
	return GuardEventResp{
		RequestID:        e.RequestID,
		ClientID:         e.ClientID,
		Kind:             e.Kind,
		Outcome:          e.Outcome,
		Reason:           nilIfEmpty(e.Reason),
		Tier:             nilIfEmpty(e.Tier),
		Indicators:       nonNil(e.Indicators),
		SignatureTags:    nonNil(e.SignatureTags),
		SignatureClasses: nonNil(e.SignatureClasses),
		UserID:           nilIfEmpty(e.UserID),
		SessionID:        nilIfEmpty(e.SessionID),
		InputPreview:     e.InputPreview,
		InputSize:        e.InputSize,
		LatencyMs:        e.LatencyMs,
		Source:           e.Source,
		Timestamp:        e.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func queryTime(q url.Values, key string) (*time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
