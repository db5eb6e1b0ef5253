package models

import (
	"database/sql"
	"time"
)

// Lifecycle is the soft-delete state of a product or user: either active, or
// deactivated at a point in time. The zero value is active.
type Lifecycle struct {
	deactivatedAt *time.Time
}

func Active() Lifecycle {
	return Lifecycle{}
}

func DeactivatedAt(at time.Time) Lifecycle {
	at = at.UTC()
	return Lifecycle{deactivatedAt: &at}
}

func LifecycleFromNullTime(deletedAt sql.NullTime) Lifecycle {
	if !deletedAt.Valid {
		return Active()
	}
	return DeactivatedAt(deletedAt.Time)
}

func (l Lifecycle) IsActive() bool {
	return l.deactivatedAt == nil
}

// DeletedAt returns nil while active.
func (l Lifecycle) DeletedAt() *time.Time {
	if l.deactivatedAt == nil {
		return nil
	}
	at := *l.deactivatedAt
	return &at
}

// Toggle flips the state, stamping now when deactivating.
func (l Lifecycle) Toggle(now time.Time) Lifecycle {
	if l.IsActive() {
		return DeactivatedAt(now)
	}
	return Active()
}

func (l Lifecycle) NullTime() sql.NullTime {
	if l.deactivatedAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *l.deactivatedAt, Valid: true}
}

type lifecycleJSON struct {
	IsActive  bool       `json:"isActive"`
	DeletedAt *time.Time `json:"deletedAt"`
}

func (l Lifecycle) toJSON() lifecycleJSON {
	return lifecycleJSON{IsActive: l.IsActive(), DeletedAt: l.DeletedAt()}
}

// lifecycle trusts deletedAt alone; isActive is derived from it on output.
func (j lifecycleJSON) lifecycle() Lifecycle {
	if j.DeletedAt != nil {
		return DeactivatedAt(*j.DeletedAt)
	}
	return Active()
}
