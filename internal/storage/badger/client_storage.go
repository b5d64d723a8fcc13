package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ClientStorage implements the ClientStorage interface for Badger
type ClientStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClientStorage creates a new ClientStorage instance
func NewClientStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClientStorage {
	return &ClientStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ClientStorage) SaveClient(ctx context.Context, client *models.ClientRecord) error {
	if err := client.Validate(); err != nil {
		return err
	}
	client.UpdatedAt = time.Now()
	if client.CreatedAt.IsZero() {
		client.CreatedAt = client.UpdatedAt
	}

	if err := s.db.Store().Upsert(client.ID, client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (s *ClientStorage) GetClient(ctx context.Context, clientID string) (*models.ClientRecord, error) {
	var client models.ClientRecord
	if err := s.db.Store().Get(clientID, &client); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("client not found: %s", clientID)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

func (s *ClientStorage) ListClients(ctx context.Context) ([]*models.ClientRecord, error) {
	var clients []models.ClientRecord
	query := badgerhold.Where("ID").Ne("").SortBy("DisplayName")
	if err := s.db.Store().Find(&clients, query); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	result := make([]*models.ClientRecord, len(clients))
	for i := range clients {
		result[i] = &clients[i]
	}
	return result, nil
}

func (s *ClientStorage) DeleteClient(ctx context.Context, clientID string) error {
	if err := s.db.Store().Delete(clientID, &models.ClientRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}
