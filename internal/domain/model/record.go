package model

import (
	"fmt"
	"time"
)

// RecordStatus is the state of a record in the external approval workflow.
type RecordStatus string

const (
	StatusSubmitted          RecordStatus = "submitted"
	StatusApproved           RecordStatus = "approved"
	StatusRejected           RecordStatus = "rejected"
	StatusUnderConsideration RecordStatus = "under_consideration"
)

// ParseRecordStatus validates s.
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch st := RecordStatus(s); st {
	case StatusSubmitted, StatusApproved, StatusRejected, StatusUnderConsideration:
		return st, nil
	default:
		return "", fmt.Errorf("unknown record status %q", s)
	}
}

// Record is a player's claimed completion of a demon.
type Record struct {
	ID       int64        `json:"id"`
	Progress int          `json:"progress"`
	Video    string       `json:"video,omitempty"`
	Status   RecordStatus `json:"status"`
	Player   Player       `json:"player"`
	Demon    MinimalDemon `json:"demon"`
}

// Submission is a record waiting in the submission queue.
type Submission struct {
	ID          string    `json:"id"`
	DemonID     int64     `json:"demon"`
	Player      string    `json:"player"`
	Progress    int       `json:"progress"`
	Video       string    `json:"video"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RankedPlayer is one row of the player ranking.
type RankedPlayer struct {
	Rank   int     `json:"rank"`
	Player Player  `json:"player"`
	Score  float64 `json:"score"`
}
