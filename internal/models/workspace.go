package models

import "time"

// Workspace is a tenant. One owner may hold several; exactly one of them is the default.
type Workspace struct {
	ID            int64     `db:"id" json:"id"`
	OwnerID       int64     `db:"owner_id" json:"owner_id"`
	Name          string    `db:"name" json:"name"`
	CreditBalance int64     `db:"credit_balance" json:"credit_balance"`
	IsDefault     bool      `db:"is_default" json:"is_default"`
	IsDisabled    bool      `db:"is_disabled" json:"is_disabled"` // soft-disable, never hard-deleted
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
