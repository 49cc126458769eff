package core

import "time"

// CheckpointRecord describes a persisted state snapshot. Records are
// immutable once written; superseded records are archived, not mutated.
type CheckpointRecord struct {
	CheckpointID     string    `json:"checkpoint_id"`
	Phase            Phase     `json:"phase"`
	Timestamp        time.Time `json:"timestamp"`
	SizeBytes        int64     `json:"size_bytes"`
	CompressionRatio *float64  `json:"compression_ratio,omitempty"`
	AgentsCompleted  []string  `json:"agents_completed"`
	NextAgent        string    `json:"next_agent,omitempty"`
	Archived         bool      `json:"archived"`
	ArchivedAt       time.Time `json:"archived_at,omitempty"`
}
