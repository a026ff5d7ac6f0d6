package model

import "time"

// Repository is a monitored source repository. The URL is the canonical
// HTTPS form and serves as the identifier.
type Repository struct {
	URL        string    `json:"url"`
	Host       string    `json:"host"`
	Namespace  string    `json:"namespace"`
	Name       string    `json:"name"`
	Language   string    `json:"language"`
	Checkpoint string    `json:"checkpoint"` // last processed commit SHA, empty before first ingestion
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
