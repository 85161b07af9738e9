package common

import (
	"github.com/google/uuid"
)

// NewAssessmentID generates a unique assessment ID
func NewAssessmentID() string {
	return uuid.New().String()
}

// NewRequestID generates a unique write-request ID with the "wr_" prefix
func NewRequestID() string {
	return "wr_" + uuid.New().String()
}
