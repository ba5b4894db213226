// Package flipbook defines the domain records shared across the service and
// the error taxonomy for upload admission, validation and rendering.
package flipbook

import "time"

// Document is the persisted record for one flipbook. It is created only
// after the validator has accepted the stored bytes and is exclusively
// owned by the identifier that created it until explicit deletion.
type Document struct {
	ID         string    `firestore:"-" json:"id"`
	Identifier string    `firestore:"identifier" json:"identifier"`
	StorageRef string    `firestore:"storageRef" json:"storageRef"`
	Title      string    `firestore:"title" json:"title"`
	ByteSize   int64     `firestore:"byteSize" json:"byteSize"`
	MIMEType   string    `firestore:"mimeType" json:"mimeType"`
	PageCount  int       `firestore:"pageCount,omitempty" json:"pageCount"`
	IsPublic   bool      `firestore:"isPublic" json:"isPublic"`
	CreatedAt  time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// RateWindow is the per-identifier upload accounting record. Count never
// exceeds the configured ceiling while the window is live; expiry is
// re-derived lazily on each admission check rather than by a timer.
type RateWindow struct {
	Identifier  string    `firestore:"identifier"`
	Count       int       `firestore:"uploadCount"`
	WindowStart time.Time `firestore:"windowStart"`
}

// Expired reports whether the window has aged out relative to now.
// A pure function of its inputs; callers decide what to do with the answer.
func (w RateWindow) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(w.WindowStart) >= window
}

// Session tracks the flipbooks created under one anonymous identifier.
type Session struct {
	SessionID    string    `firestore:"sessionId"`
	FlipbookIDs  []string  `firestore:"flipbookIds"`
	CreatedAt    time.Time `firestore:"createdAt"`
	LastActiveAt time.Time `firestore:"lastActiveAt"`
}

// PendingUpload tracks a stored blob that has not yet been committed to a
// Document. The janitor sweeps entries that linger past their TTL.
type PendingUpload struct {
	StorageRef string    `firestore:"storageRef"`
	Bucket     string    `firestore:"bucket"`
	Committed  bool      `firestore:"committed"`
	CreatedAt  time.Time `firestore:"createdAt"`
}
