package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/streamexec/internal/approval"
	"github.com/flemzord/streamexec/internal/remote"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"` // "ok" or "degraded"
	Providers map[string]remote.State `json:"providers,omitempty"`
}

// handleHealth returns 200 when every connected provider is ready, 503
// when any is broken. Disabled providers do not degrade health.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if s.remote != nil {
			resp.Providers = s.remote.States()
			for _, state := range resp.Providers {
				if state == remote.StateBroken {
					resp.Status = "degraded"
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds    float64                 `json:"uptime_seconds"`
	PendingApprovals int                     `json:"pending_approvals"`
	EventSubscribers int                     `json:"event_subscribers"`
	Providers        map[string]remote.State `json:"providers,omitempty"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds:    time.Since(s.startedAt).Truncate(time.Second).Seconds(),
			EventSubscribers: s.events.Subscribers(),
		}

		if s.broker != nil {
			resp.PendingApprovals = len(s.broker.PendingRequests())
		}
		if s.remote != nil {
			resp.Providers = s.remote.States()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// ApprovalEntry is one pending approval in the GET /api/approvals listing.
type ApprovalEntry struct {
	ID         string            `json:"id"`
	CallID     int64             `json:"call_id"`
	Capability string            `json:"capability"`
	Summary    string            `json:"summary"`
	Params     map[string]string `json:"params,omitempty"`
	Scope      approval.Scope    `json:"scope"`
}

func (s *Server) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		entries := []ApprovalEntry{}
		if s.broker != nil {
			for _, req := range s.broker.PendingRequests() {
				entries = append(entries, ApprovalEntry{
					ID:         req.ID,
					CallID:     req.CallID,
					Capability: req.Capability,
					Summary:    req.Summary,
					Params:     req.Params,
					Scope:      req.Scope,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}
}

// resolveRequest is the JSON body for POST /api/approvals/{id}.
type resolveRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleResolveApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.broker == nil {
			http.Error(w, "approvals not available", http.StatusServiceUnavailable)
			return
		}

		id := chi.URLParam(r, "id")

		var body resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		err := s.broker.Resolve(id, approval.Response{Approved: body.Approved, Reason: body.Reason})
		if err != nil {
			if errors.Is(err, approval.ErrUnknownRequest) {
				http.Error(w, "no such approval request", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		s.logger.Info("approval resolved via gateway",
			"request", id, "approved", body.Approved)

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		states := map[string]remote.State{}
		if s.remote != nil {
			states = s.remote.States()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(states)
	}
}
