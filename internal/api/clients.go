package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/xzc516/fit5032-youthwell-project/internal/store"
)

func (d *Dependencies) requireClients(w http.ResponseWriter) bool {
	if d.Clients == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Postgres not configured"})
		return false
	}
	return true
}

func (d *Dependencies) invalidate(clientID string) {
	if d.Invalidate != nil {
		d.Invalidate(clientID)
	}
}

func (d *Dependencies) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	var req CreateClientReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	client, _, plainKey, err := d.Clients.CreateClient(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create client"})
		return
	}
	writeJSON(w, http.StatusCreated, CreateClientResp{ClientResp: clientToResp(client), APIKey: plainKey})
}

func (d *Dependencies) handleListClients(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	clients, err := d.Clients.ListClients(r.Context())
	if err != nil {
		d.Logger.Error("failed to list clients", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list clients"})
		return
	}

	resp := make([]ClientResp, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientToResp(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetClient(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	client, err := d.Clients.GetClient(r.Context(), r.PathValue("client_id"))
	if err != nil {
		d.Logger.Error("failed to get client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	writeJSON(w, http.StatusOK, clientToResp(client))
}

func (d *Dependencies) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	var req UpdateClientReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	client, err := d.Clients.RenameClient(r.Context(), r.PathValue("client_id"), req.Name)
	if err != nil {
		d.Logger.Error("failed to update client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	d.invalidate(client.ID)
	writeJSON(w, http.StatusOK, clientToResp(client))
}

func (d *Dependencies) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	id := r.PathValue("client_id")
	err := d.Clients.DeleteClient(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete client"})
		return
	}
	d.invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	if !d.requireClients(w) {
		return
	}
	client, plainKey, err := d.Clients.RotateAPIKey(r.Context(), r.PathValue("client_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	d.invalidate(client.ID)
	writeJSON(w, http.StatusOK, RotateKeyResp{APIKey: plainKey, APIKeyPrefix: client.APIKeyPrefix})
}

func clientToResp(c *store.Client) ClientResp {
	return ClientResp{
		ID:           c.ID,
		Name:         c.Name,
		APIKeyPrefix: c.APIKeyPrefix,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
