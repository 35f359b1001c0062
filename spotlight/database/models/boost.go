package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BoostTier string

const (
	BoostTierBronze   BoostTier = "bronze"
	BoostTierSilver   BoostTier = "silver"
	BoostTierGold     BoostTier = "gold"
	BoostTierPlatinum BoostTier = "platinum"
	BoostTierDiamond  BoostTier = "diamond"
)

// Boost is a purchased, time-limited visibility elevation for a subject.
// The unique subject_id column enforces at most one boost row per subject;
// buying a new boost replaces the old row.
type Boost struct {
	bun.BaseModel `bun:"table:boosts,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	BoostID   string    `bun:"boost_id,notnull,unique"`
	SubjectID string    `bun:"subject_id,notnull,unique"`
	Tier      BoostTier `bun:"tier,notnull"`
	Priority  int       `bun:"priority,notnull"`
	Cost      int64     `bun:"cost,notnull"`

	StartTime time.Time `bun:"start_time,notnull"`
	EndTime   time.Time `bun:"end_time,notnull"`

	// TxID is the spend transaction that paid for this boost.
	TxID string `bun:"tx_id,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// ActiveAt reports whether the boost is still in effect. Expired rows are
// treated as absent without requiring deletion.
func (b *Boost) ActiveAt(now time.Time) bool {
	return b.EndTime.After(now)
}
