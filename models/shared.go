package models

// SyncPayload describes a remote mutation the engine applied locally but
// could not confirm with the store. It is retried in the background, scoped
// to the rows visible to UserID.
type SyncPayload struct {
	Op     string   `json:"op"` // "read", "read_all" or "delete"
	IDs    []string `json:"ids,omitempty"`
	UserID string   `json:"userId,omitempty"`
}

const (
	SyncOpRead    = "read"
	SyncOpReadAll = "read_all"
	SyncOpDelete  = "delete"
)
