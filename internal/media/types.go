// Package media manages the canonical catalog records being acquired.
package media

import "time"

// Item is the canonical record for a title being acquired.
// Created lazily on first request, updated idempotently from catalog lookups.
type Item struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	ExternalID     string    `json:"externalId"` // catalog identifier (ASIN)
	RuntimeMinutes int       `json:"runtimeMinutes"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// UpsertInput contains the fields used to find-or-create an item.
type UpsertInput struct {
	Title          string
	Author         string
	ExternalID     string
	RuntimeMinutes int
}
