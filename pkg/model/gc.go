package model

import "time"

// DefaultMediaKeepMinAge protects photos the intrusion responder may not
// have journaled yet.
const DefaultMediaKeepMinAge = time.Hour

// MediaGCPlan is the output of the media collector's plan phase.
type MediaGCPlan struct {
	PlanID         string        `json:"plan_id"`
	CreatedAt      time.Time     `json:"created_at"`
	Referenced     int           `json:"referenced"`
	ProtectedByAge int           `json:"protected_by_age"`
	CandidateCount int           `json:"candidate_count"`
	ToDelete       []string      `json:"to_delete"`
	DeletableBytes int64         `json:"deletable_bytes"`
	KeepMinAge     time.Duration `json:"keep_min_age"`
}
