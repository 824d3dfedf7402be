// Package entities holds the payloads exchanged with the agent platform API.
package entities

import "time"

// Metadata is carried by every entity returned by the API.
type Metadata struct {
	ID      string            `json:"id"`
	Created *time.Time        `json:"created,omitempty"`
	Links   map[string]string `json:"links,omitempty"`
}

// GetID returns the entity id.
func (m Metadata) GetID() string {
	return m.ID
}

// EntityList is the envelope list endpoints respond with.
type EntityList[T any] struct {
	Items []T `json:"items"`
}

// InvokeResponse is returned when a run is started.
type InvokeResponse struct {
	ThreadID string `json:"threadID"`
}
