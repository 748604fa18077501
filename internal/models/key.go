package models

import (
	"strconv"
	"time"
)

// APIKey represents an API access key record.
//
// Key holds the raw value only on creation; records loaded from the store
// and records handed to request handlers never carry it.
type APIKey struct {
	ID          int64      `json:"id"`
	Key         string     `json:"-"`
	Prefix      string     `json:"prefix"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Active      bool       `json:"active"`
	UsageCount  int64      `json:"usageCount"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UserID      *string    `json:"userId,omitempty"`

	// Demo marks the bypass identity. Demo keys are never persisted.
	Demo bool `json:"-"`
}

// Identity returns the admission identity used for rate limiting.
func (k *APIKey) Identity() string {
	if k.Demo {
		return "demo:" + k.Prefix
	}
	return "key:" + strconv.FormatInt(k.ID, 10)
}

// Redacted returns a copy of the record without the raw key value.
func (k *APIKey) Redacted() *APIKey {
	cp := *k
	cp.Key = ""
	return &cp
}

// UpdateUsage applies a persisted usage count to the in-memory record.
// The counter never moves backwards.
func (k *APIKey) UpdateUsage(count int64, at time.Time) {
	if count > k.UsageCount {
		k.UsageCount = count
	}
	k.LastUsed = &at
}
