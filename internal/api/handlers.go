// Package api provides HTTP handlers for the warming control endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/warmline/warmline/internal/messaging"
	"github.com/warmline/warmline/internal/models"
)

// contactRequest is the body of the contact enable/disable endpoints.
type contactRequest struct {
	Address string `json:"address"`
}

// statusResult is the payload of the status endpoint.
type statusResult struct {
	Active        bool     `json:"active"`
	Conversations []string `json:"conversations"`
}

// contactStatsResult pairs an address with its message counters.
type contactStatsResult struct {
	Address  string `json:"address"`
	Sent     int64  `json:"sent"`
	Received int64  `json:"received"`
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.startHandler: processing start request", "method", r.Method)
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var campaign models.CampaignConfig
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		slog.Warn("Server.startHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	// Canonicalize every target before the campaign is validated so the
	// session and the transport agree on addressing.
	for i, target := range campaign.Targets {
		canonical, err := messaging.CanonicalizeRecipient(target)
		if err != nil {
			slog.Warn("Server.startHandler: target validation failed", "error", err, "target", target)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		campaign.Targets[i] = canonical
	}

	if err := s.session.Start(campaign); err != nil {
		if errors.Is(err, models.ErrNoSession) {
			slog.Warn("Server.startHandler: no messaging session", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Messaging session is not connected"))
			return
		}
		slog.Warn("Server.startHandler: campaign rejected", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.startHandler: warming started", "targets", len(campaign.Targets))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Warming started", nil))
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	s.session.Stop()
	slog.Info("Server.stopHandler: warming stopped")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Warming stopped", nil))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	result := statusResult{
		Active:        s.session.IsActive(),
		Conversations: s.session.ActiveConversations(),
	}
	if result.Conversations == nil {
		result.Conversations = []string{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) enableContactHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeContact(w, r)
	if !ok {
		return
	}
	s.session.EnableContact(address)
	slog.Info("Server.enableContactHandler: contact enabled", "address", address)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Contact enabled", nil))
}

func (s *Server) disableContactHandler(w http.ResponseWriter, r *http.Request) {
	address, ok := s.decodeContact(w, r)
	if !ok {
		return
	}
	s.session.DisableContact(address)
	slog.Info("Server.disableContactHandler: contact disabled", "address", address)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Contact disabled", nil))
}

// decodeContact parses and canonicalizes the contact body shared by the
// enable and disable endpoints, writing the error response itself.
func (s *Server) decodeContact(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return "", false
	}
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.decodeContact: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return "", false
	}
	canonical, err := messaging.CanonicalizeRecipient(req.Address)
	if err != nil {
		slog.Warn("Server.decodeContact: address validation failed", "error", err, "address", req.Address)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", false
	}
	return canonical, true
}

func (s *Server) reloadMediaHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.selector.Reload(); err != nil {
		slog.Error("Server.reloadMediaHandler: reload failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reload media catalogue"))
		return
	}
	categories := s.selector.Categories()
	slog.Info("Server.reloadMediaHandler: catalogue reloaded", "categories", len(categories))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]any{"categories": categories}))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	all, err := s.stats.GetStats()
	if err != nil {
		slog.Error("Server.statsHandler: stats lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read statistics"))
		return
	}

	if address := r.URL.Query().Get("address"); address != "" {
		canonical, err := messaging.CanonicalizeRecipient(address)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		result := contactStatsResult{Address: canonical}
		for _, stats := range all {
			if stats.Address == canonical {
				result.Sent = stats.Sent
				result.Received = stats.Received
			}
		}
		writeJSONResponse(w, http.StatusOK, models.Success(result))
		return
	}

	results := []contactStatsResult{}
	for _, stats := range all {
		results = append(results, contactStatsResult{
			Address:  stats.Address,
			Sent:     stats.Sent,
			Received: stats.Received,
		})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(results))
}
