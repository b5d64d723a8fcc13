package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

type ClientHandler struct {
	clientStorage interfaces.ClientStorage
	logger        arbor.ILogger
}

func NewClientHandler(clientStorage interfaces.ClientStorage, logger arbor.ILogger) *ClientHandler {
	return &ClientHandler{
		clientStorage: clientStorage,
		logger:        logger,
	}
}

type clientRequest struct {
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Notes       string `json:"notes"`
}

// CreateClientHandler registers a new client record
func (h *ClientHandler) CreateClientHandler(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	client := &models.ClientRecord{
		ID:          common.NewClientID(),
		DisplayName: req.DisplayName,
		Category:    req.Category,
		Notes:       req.Notes,
	}
	if err := client.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.clientStorage.SaveClient(r.Context(), client); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save client")
		WriteError(w, http.StatusInternalServerError, "Failed to create client")
		return
	}

	h.logger.Info().Str("client_id", client.ID).Msg("Client created")
	WriteJSON(w, http.StatusCreated, client)
}

// ListClientsHandler lists all client records
func (h *ClientHandler) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientStorage.ListClients(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list clients")
		WriteError(w, http.StatusInternalServerError, "Failed to list clients")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	})
}

// GetClientHandler returns one client record
func (h *ClientHandler) GetClientHandler(w http.ResponseWriter, r *http.Request, clientID string) {
	client, err := h.clientStorage.GetClient(r.Context(), clientID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Client not found: "+clientID)
		return
	}
	WriteJSON(w, http.StatusOK, client)
}

// UpdateClientHandler updates a client record in place
func (h *ClientHandler) UpdateClientHandler(w http.ResponseWriter, r *http.Request, clientID string) {
	client, err := h.clientStorage.GetClient(r.Context(), clientID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Client not found: "+clientID)
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.DisplayName != "" {
		client.DisplayName = req.DisplayName
	}
	if req.Category != "" {
		client.Category = req.Category
	}
	if req.Notes != "" {
		client.Notes = req.Notes
	}

	if err := h.clientStorage.SaveClient(r.Context(), client); err != nil {
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to update client")
		WriteError(w, http.StatusInternalServerError, "Failed to update client")
		return
	}

	WriteJSON(w, http.StatusOK, client)
}

// DeleteClientHandler removes a client record
func (h *ClientHandler) DeleteClientHandler(w http.ResponseWriter, r *http.Request, clientID string) {
	if err := h.clientStorage.DeleteClient(r.Context(), clientID); err != nil {
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to delete client")
		WriteError(w, http.StatusInternalServerError, "Failed to delete client")
		return
	}
	WriteSuccess(w, "Client deleted")
}
