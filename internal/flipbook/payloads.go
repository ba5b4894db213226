package flipbook

// These structs define the JSON payloads exchanged between clients and the
// HTTP functions in cmd/flipbookd.

// UploadURLRequest asks for permission to start an upload.
type UploadURLRequest struct {
	Identifier string `json:"identifier"`
}

// UploadURLResponse grants an upload slot: a pre-authorized URL plus the
// storage reference the bytes will land under.
type UploadURLResponse struct {
	UploadURL  string `json:"uploadUrl"`
	StorageRef string `json:"storageRef"`
}

// ValidateFileRequest reports the metadata of an upload that already
// completed so the server can accept or roll it back.
type ValidateFileRequest struct {
	StorageRef string `json:"storageRef"`
	FileSize   int64  `json:"fileSize"`
	MIMEType   string `json:"mimeType"`
}

// ValidateFileResponse confirms acceptance.
type ValidateFileResponse struct {
	Valid bool `json:"valid"`
}

// CreateFlipbookRequest registers a validated upload as a Document. The
// page count is not part of the request; the server counts pages from the
// stored bytes.
type CreateFlipbookRequest struct {
	Identifier string `json:"identifier"`
	StorageRef string `json:"storageRef"`
	Title      string `json:"title"`
	FileSize   int64  `json:"fileSize"`
}

// CreateFlipbookResponse returns the new document ID.
type CreateFlipbookResponse struct {
	ID string `json:"id"`
}

// FlipbookResponse is a Document plus its resolved retrieval URL.
type FlipbookResponse struct {
	Document
	FileURL string `json:"fileUrl"`
}

// RemoveFlipbookRequest deletes a flipbook and its stored bytes.
type RemoveFlipbookRequest struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// UpdateTitleRequest renames a flipbook.
type UpdateTitleRequest struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}
