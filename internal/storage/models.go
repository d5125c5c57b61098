package storage

import (
	"errors"
	"time"

	"github.com/diarisk/diarisk/internal/assessment"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AnalysisRecord is one persisted analysis. ID and CreatedAt are assigned on append.
type AnalysisRecord struct {
	ID          int64               `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	LabFilename string              `json:"lab_filename"`
	Analysis    assessment.Analysis `json:"analysis"`
}
