package models

import "time"

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a conversation. History is chronological.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Metadata struct {
	Engine    string   `json:"engine"`
	URL       string   `json:"url,omitempty"`
	Title     string   `json:"title,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Embed     string   `json:"embed,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}

// Document is a unit of retrieved content. Treat it as immutable once a
// provider has returned it.
type Document struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// WithScore returns a copy of the document carrying the similarity score.
func (d Document) WithScore(score float64) Document {
	s := score
	d.Metadata.Score = &s
	return d
}

type MessageMetadata struct {
	CreatedAt time.Time  `json:"createdAt"`
	Sources   []Document `json:"sources,omitempty"`
}
