package models

import "time"

// Anchor is an externally observed block hash used as a fairness root.
type Anchor struct {
	ID         int64     `json:"id"`
	Hash       string    `json:"hash"`
	ObservedAt time.Time `json:"observed_at"`
}

// Seed is the number sequence derived from one anchor.
type Seed struct {
	ID           int64     `json:"id"`
	AnchorID     int64     `json:"anchor_id"`
	Length       int       `json:"length"`
	Cursor       int       `json:"cursor"`
	Materialized bool      `json:"materialized"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Seed) Remaining() int {
	return s.Length - s.Cursor
}

// Draw is one consumed seed entry.
type Draw struct {
	SeedID int64  `json:"seed_id"`
	Seq    int    `json:"seq"`
	Value  uint32 `json:"value"`
}

// AuditEntry is a stored seed entry next to the value recomputed from the
// anchor hash. RoundID names the round that consumed it.
type AuditEntry struct {
	Seq      int    `json:"seq"`
	Value    uint32 `json:"value"`
	Expected uint32 `json:"expected"`
	RoundID  string `json:"round_id,omitempty"`
}

type SeedAudit struct {
	Anchor     *Anchor      `json:"anchor"`
	Seed       *Seed        `json:"seed"`
	Entries    []AuditEntry `json:"entries"`
	Consumed   int          `json:"consumed"`
	Mismatches []int        `json:"mismatches,omitempty"`
	Consistent bool         `json:"consistent"`
}

type VerificationData struct {
	Hash  string `json:"hash"`
	Seq   int    `json:"seq"`
	Value uint32 `json:"value"`
}
