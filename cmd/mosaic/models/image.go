package models

import "time"

// StoredImage is one uploaded file persisted in the object store.
// Name is generated at intake; only the extension comes from the client.
type StoredImage struct {
	Name      string `json:"name"`
	Container string `json:"container"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url,omitempty"`
}

// WorkItem asks a worker to analyse the blob named BlobName.
// On the wire the body is the plain blob name.
type WorkItem struct {
	BlobName   string    `json:"blob_name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
