package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/policy"
	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	pol, err := d.Clients.GetPolicy(r.Context(), r.PathValue("client_id"))
	if err != nil {
		d.Logger.Error("failed to get policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get policy"})
		return
	}
	if pol == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(pol))
}

// handleReplacePolicy implements PUT /api/clients/{client_id}/policy. The
// body is a whole policy.Config; omitted fields fall back to server defaults.
func (d *Dependencies) handleReplacePolicy(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	clientID := r.PathValue("client_id")

	var cfg policy.Config
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid policy: " + err.Error()})
		return
	}

	pol, err := d.Clients.ReplacePolicy(r.Context(), clientID, &cfg)
	if err != nil {
		d.Logger.Error("failed to replace policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace policy"})
		return
	}
	if pol == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	d.invalidate(clientID)
	writeJSON(w, http.StatusOK, policyToResp(pol))
}

func policyToResp(p *store.Policy) PolicyResp {
	cfg := p.Config
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	return PolicyResp{
		ClientID:  p.ClientID,
		Config:    cfg,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
