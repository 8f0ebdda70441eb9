package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
)

//go:embed risk_request.schema.json
var riskRequestSchema []byte

var assessSchema = mustCompileSchema("risk_request.schema.json", riskRequestSchema)

func mustCompileSchema(name string, raw []byte) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		panic("api: parse " + name + ": " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		panic("api: add " + name + ": " + err.Error())
	}
	sch, err := c.Compile(name)
	if err != nil {
		panic("api: compile " + name + ": " + err.Error())
	}
	return sch
}

// schemaMessage keeps the innermost line of a validation error, which names
// the offending property.
func schemaMessage(err error) string {
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	return strings.TrimPrefix(strings.TrimSpace(lines[len(lines)-1]), "- ")
}

// DecodeAssessRequest checks body against the request schema and decodes it.
// The error text is safe to return to the caller.
func DecodeAssessRequest(body []byte) (*AssessReq, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, errors.New("Invalid JSON body")
	}
	if err := assessSchema.Validate(inst); err != nil {
		return nil, fmt.Errorf("Invalid request: %s", schemaMessage(err))
	}

	var req AssessReq
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.New("Invalid request body")
	}
	return &req, nil
}

// Snapshot is the classifier input for req.
func (r *AssessReq) Snapshot() risk.SignalSnapshot {
	return risk.SignalSnapshot{
		AssessmentScore: r.AssessmentScore,
		Behavior:        r.UserBehavior,
		Text:            r.text(),
	}
}

// NewAssessmentData decorates an assessment with the caller's user ID and,
// when a questionnaire score was given, its severity band.
func NewAssessmentData(req *AssessReq, a risk.Assessment, now time.Time) *AssessmentData {
	data := &AssessmentData{
		Assessment: a,
		UserID:     req.UserID,
		Timestamp:  now.UTC(),
	}
	if req.AssessmentScore != nil {
		data.Severity = string(risk.SeverityForScore(int(*req.AssessmentScore)))
	}
	return data
}

// handleAssessRisk implements POST /v1/risk/assess. Every outcome uses the
// {success, data|error} envelope.
func (d *Dependencies) handleAssessRisk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AssessResp{Error: "Unable to read request body"})
		return
	}
	req, err := DecodeAssessRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AssessResp{Error: err.Error()})
		return
	}

	snapshot := req.Snapshot()
	assessment := d.Classifier.Assess(snapshot)
	d.Metrics.ObserveAssessment(assessment.Tier)
	data := NewAssessmentData(req, assessment, time.Now())

	event := d.newEvent(r, storage.KindAssess)
	event.UserID = req.UserID
	event.SetInput(snapshot.Text)
	event.SetAssessment(assessment)
	if assessment.Tier == risk.TierCritical {
		event.Outcome = storage.OutcomeCrisis
		d.Logger.Warn("critical risk assessment",
			zap.String("client_id", event.ClientID),
			zap.String("user_id", req.UserID),
			zap.Strings("indicators", event.Indicators),
		)
	}
	d.emit(w, event, start)

	writeJSON(w, http.StatusOK, AssessResp{Success: true, Data: data, RequestID: event.RequestID})
}

// handleRiskResources implements GET /v1/risk/resources.
func (d *Dependencies) handleRiskResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"crisisResources": d.Classifier.Hotlines(),
		"tiers":           risk.Tiers(),
	})
}
