package models

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// VectorRecord is a dense embedding bound to an event, stored in the
// warehouse as base64 little-endian float32 bytes plus denormalized filter
// columns for query predicates.
type VectorRecord struct {
	EventID         string    `json:"event_id"`
	Vector          []float32 `json:"vector"`
	Dimension       int       `json:"vector_dimension"`
	EmbeddingModel  string    `json:"embedding_model"`
	CreatedAt       time.Time `json:"vector_created_at"`
	IsActive        bool      `json:"is_active"`
	CompanyName     string    `json:"company_name"`
	RiskLevel       string    `json:"risk_level"`
	PublicationDate string    `json:"publication_date"`
	Source          Source    `json:"source"`
	Title           string    `json:"title"`
	TextSummary     string    `json:"text_summary"` // capped at 1000 chars
}

// MaxTextSummaryLen bounds the denormalized text column.
const MaxTextSummaryLen = 1000

// VectorHit is one scored result from a vector search backend.
type VectorHit struct {
	ID       string                 `json:"id"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata"`
	Document string                 `json:"document"`
}

// VectorFilter constrains a vector search.
type VectorFilter struct {
	CompanyName string `json:"company_name,omitempty"`
	RiskLevel   string `json:"risk_level,omitempty"`
	Source      string `json:"source,omitempty"`
}

// MigrateResult reports a local-index to warehouse vector migration.
type MigrateResult struct {
	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// EncodeVector packs a float32 vector into base64 little-endian bytes, the
// warehouse wire format. The stored vector_dimension column is the length
// check on the way back out.
func EncodeVector(vector []float32) string {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector unpacks a base64 little-endian float32 vector and verifies it
// against the recorded dimension.
func DecodeVector(encoded string, dimension int) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid vector encoding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector byte length %d is not a multiple of 4", len(buf))
	}
	vector := make([]float32, len(buf)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	if dimension > 0 && len(vector) != dimension {
		return nil, fmt.Errorf("vector dimension mismatch: recorded %d, decoded %d", dimension, len(vector))
	}
	return vector, nil
}
