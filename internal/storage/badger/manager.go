package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// Manager bundles the Badger-backed storages behind the StorageManager
// interface and owns the database connection lifecycle.
type Manager struct {
	db            *BadgerDB
	jobStorage    interfaces.JobStorage
	clientStorage interfaces.ClientStorage
	logger        arbor.ILogger
}

var _ interfaces.StorageManager = (*Manager)(nil)

// NewManager opens the database and wires the storages
func NewManager(config *common.BadgerConfig, eventService interfaces.EventService, logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:            db,
		jobStorage:    NewJobStorage(db, eventService, logger),
		clientStorage: NewClientStorage(db, logger),
		logger:        logger,
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobStorage
}

func (m *Manager) ClientStorage() interfaces.ClientStorage {
	return m.clientStorage
}

func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
