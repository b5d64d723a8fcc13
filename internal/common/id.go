package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique analysis job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewClientID generates a unique client record ID with the "client_" prefix
// Format: client_<uuid>
func NewClientID() string {
	return "client_" + uuid.New().String()
}
