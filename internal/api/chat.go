package api

import (
	"net/http"
	"time"

	"github.com/xzc516/fit5032-youthwell-project/internal/auth"
	"github.com/xzc516/fit5032-youthwell-project/internal/chat"
	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/storage"
)

// handleChat implements POST /v1/chat.
func (d *Dependencies) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if d.Chat == nil || d.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Chat is not configured"})
		return
	}
	client := auth.FromContext(r.Context())
	if !client.Policy.IsChatEnabled() {
		writeJSON(w, http.StatusForbidden, ErrorResp{Detail: "Chat is disabled for this client"})
		return
	}

	var req ChatReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	sess := d.Sessions.GetOrCreate(client.ClientID, req.SessionID)
	reply := d.Chat.Send(r.Context(), sess, req.Message)
	d.Metrics.ObserveChatReply(replyKind(reply))

	event := d.newEvent(r, storage.KindChat)
	event.SessionID = sess.ID
	event.SetInput(req.Message)
	event.SetMatches(contentguard.Scan(req.Message))
	switch {
	case reply.Crisis:
		event.Outcome = storage.OutcomeCrisis
	case reply.Rejected:
		event.Outcome = storage.OutcomeRejected
	case reply.Fallback:
		event.Outcome = storage.OutcomeFallback
	}
	d.emit(w, event, start)

	writeJSON(w, http.StatusOK, ChatResp{
		SessionID: sess.ID,
		Reply:     reply.Text,
		Crisis:    reply.Crisis,
		Rejected:  reply.Rejected,
		Fallback:  reply.Fallback,
	})
}

func replyKind(r chat.Reply) string {
	switch {
	case r.Crisis:
		return "crisis"
	case r.Rejected:
		return "rejected"
	case r.Fallback:
		return "fallback"
	default:
		return "ok"
	}
}

// handleChatPrompts implements GET /v1/chat/prompts.
func (d *Dependencies) handleChatPrompts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"prompts": chat.SuggestedPrompts()})
}

// handleClearChat implements DELETE /v1/chat/{session_id}.
func (d *Dependencies) handleClearChat(w http.ResponseWriter, r *http.Request) {
	if d.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Chat is not configured"})
		return
	}
	id := r.PathValue("session_id")
	sess, ok := d.Sessions.Get(id)
	if !ok || sess.Owner != auth.FromContext(r.Context()).ClientID {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Session not found."})
		return
	}
	d.Sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}
