package models

// Citation references a chunk from a chat answer. Citations resolving to the
// same display string are kept as separate entries.
type Citation struct {
	ChunkID string    `json:"chunkId"`
	Title   string    `json:"title"`
	Page    *int      `json:"page,omitempty"`
	Kind    ChunkKind `json:"kind,omitempty"`
	Text    string    `json:"text,omitempty"`
	Label   string    `json:"label,omitempty"`
	Display string    `json:"display,omitempty"`
}

type ChatAnswer struct {
	DocumentID string     `json:"documentId"`
	Query      string     `json:"query"`
	Answer     string     `json:"answer"`
	Sources    []Citation `json:"sources"`
	Source     string     `json:"source"`
}
