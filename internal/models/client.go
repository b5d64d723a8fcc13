package models

import (
	"fmt"
	"time"
)

// ClientRecord represents one client managed by the practitioner
type ClientRecord struct {
	ID          string    `json:"id" badgerhold:"key"`
	DisplayName string    `json:"display_name"`
	Category    string    `json:"category,omitempty"` // e.g. age group or engagement type label
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate validates the client record
func (c *ClientRecord) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.DisplayName == "" {
		return fmt.Errorf("client display name is required")
	}
	return nil
}
