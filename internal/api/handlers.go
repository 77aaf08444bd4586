// Package api provides HTTP handlers for LeadLine endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/leadline/leadline/internal/engage"
	"github.com/leadline/leadline/internal/models"
)

// healthHandler serves the static status payload at the root path.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "leadline"}))
}

// webhookHandler handles inbound Twilio SMS webhook requests. It is the sole
// trigger for the inbound pipeline.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.webhookHandler: inbound webhook received", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Server.webhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	to := r.FormValue("To")
	body := r.FormValue("Body")
	if from == "" || to == "" || body == "" {
		slog.Warn("Server.webhookHandler: missing fields", "from_set", from != "", "to_set", to != "", "body_set", body != "")
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Server.webhookHandler: inbound SMS", "from", from, "to", to, "body_length", len(body))

	outcome, err := s.orch.HandleInbound(r.Context(), from, to, body)
	if err != nil {
		slog.Error("Server.webhookHandler: pipeline failed", "error", err, "from", from)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	switch outcome.Status {
	case engage.InboundHumanReview:
		fmt.Fprint(w, "Message stored for human review")
	default:
		fmt.Fprint(w, "Reply sent")
	}
}

// sendMessageHandler handles operator-initiated sends. It bypasses the
// takeover gate; a human explicitly sending a message is always allowed.
func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.To == "" || req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Fields 'to' and 'message' are required"))
		return
	}

	sid, err := s.orch.SendManual(r.Context(), req.To, req.Message)
	if err != nil {
		slog.Error("Server.sendMessageHandler: manual send failed", "error", err, "to", req.To)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendMessageHandler: message sent", "to", req.To, "sid", sid)
	writeJSONResponse(w, http.StatusOK, models.SendMessageResult{Success: true, MessageSID: sid})
}

// takeoverHandler flips the human takeover flag for a customer. This is the
// external write path for the flag; the inbound pipeline only reads it.
func (s *Server) takeoverHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.TakeoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.takeoverHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Phone == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Field 'phone' is required"))
		return
	}

	customer, err := s.orch.SetTakeover(r.Context(), req.Phone, req.Active)
	if err != nil {
		if errors.Is(err, models.ErrCustomerNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Customer not found"))
			return
		}
		slog.Error("Server.takeoverHandler: takeover update failed", "error", err, "phone", req.Phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update takeover"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Takeover updated", customer))
}

// customersHandler lists customers ordered by qualification score.
func (s *Server) customersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	customers, err := s.st.ListCustomers(r.Context())
	if err != nil {
		slog.Error("Server.customersHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list customers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(customers))
}
