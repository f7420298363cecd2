package models

import "time"

// NATS subjects
const (
	SubjectIngestEvent     = "ingest.event"
	SubjectIngestOrder     = "ingest.order"
	SubjectIngestAdSpend   = "ingest.ad_spend"
	SubjectIngestCompleted = "ingest.completed"
	SubjectPacingRebuilt   = "pacing.rebuilt"
)

// IngestCompletedEvent is published by a feed after a synchronization pass
type IngestCompletedEvent struct {
	Source    string    `json:"source"`
	Events    int       `json:"events"`
	Orders    int       `json:"orders"`
	Timestamp time.Time `json:"timestamp"`
}

// PacingRebuiltEvent is published after snapshots, curves and customers were rebuilt
type PacingRebuiltEvent struct {
	Snapshots int       `json:"snapshots"`
	Curves    int       `json:"curves"`
	Customers int       `json:"customers"`
	Duration  string    `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}
