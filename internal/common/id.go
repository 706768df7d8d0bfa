package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique analysis job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewAnalysisID generates a unique analysis run ID with the "ana_" prefix
// Format: ana_<uuid>
func NewAnalysisID() string {
	return "ana_" + uuid.New().String()
}
