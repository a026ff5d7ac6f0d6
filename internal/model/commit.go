package model

import "time"

// Commit is one unit of ingestion work: a commit newer than the repository's
// checkpoint, with enough context for the analysis stages.
type Commit struct {
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Files     []string  `json:"files,omitempty"`
	Diff      string    `json:"diff,omitempty"`
}
