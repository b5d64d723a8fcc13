package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/models"
)

func newTestClientHandler() (*ClientHandler, *mockClientStorage) {
	storage := newMockClientStorage()
	return NewClientHandler(storage, arbor.NewLogger()), storage
}

func TestCreateClientHandler(t *testing.T) {
	handler, storage := newTestClientHandler()

	body, _ := json.Marshal(map[string]string{
		"display_name": "Jamie Rivers",
		"category":     "early primary",
		"notes":        "prefers pencil work",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/clients", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CreateClientHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var client models.ClientRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &client))
	assert.True(t, strings.HasPrefix(client.ID, "client_"), "id %q should carry the client prefix", client.ID)
	assert.Equal(t, "Jamie Rivers", client.DisplayName)
	assert.Contains(t, storage.clients, client.ID)
}

func TestCreateClientHandlerRequiresDisplayName(t *testing.T) {
	handler, _ := newTestClientHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(`{"category":"teen"}`))
	rec := httptest.NewRecorder()

	handler.CreateClientHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateClientHandlerPartialUpdate(t *testing.T) {
	handler, storage := newTestClientHandler()
	storage.clients["client_1"] = &models.ClientRecord{
		ID: "client_1", DisplayName: "Jamie Rivers", Category: "early primary",
	}

	req := httptest.NewRequest(http.MethodPut, "/api/clients/client_1", strings.NewReader(`{"notes":"new notes"}`))
	rec := httptest.NewRecorder()

	handler.UpdateClientHandler(rec, req, "client_1")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := storage.clients["client_1"]
	assert.Equal(t, "Jamie Rivers", updated.DisplayName, "unset fields must survive the update")
	assert.Equal(t, "new notes", updated.Notes)
}

func TestGetClientHandlerNotFound(t *testing.T) {
	handler, _ := newTestClientHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/clients/client_missing", nil)
	rec := httptest.NewRecorder()

	handler.GetClientHandler(rec, req, "client_missing")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClientsHandler(t *testing.T) {
	handler, storage := newTestClientHandler()
	storage.clients["client_1"] = &models.ClientRecord{ID: "client_1", DisplayName: "A"}
	storage.clients["client_2"] = &models.ClientRecord{ID: "client_2", DisplayName: "B"}

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	rec := httptest.NewRecorder()

	handler.ListClientsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
}

func TestDeleteClientHandler(t *testing.T) {
	handler, storage := newTestClientHandler()
	storage.clients["client_1"] = &models.ClientRecord{ID: "client_1", DisplayName: "A"}

	req := httptest.NewRequest(http.MethodDelete, "/api/clients/client_1", nil)
	rec := httptest.NewRecorder()

	handler.DeleteClientHandler(rec, req, "client_1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, storage.clients, "client_1")
}
