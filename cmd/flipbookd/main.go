package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/pagecurl/flipbookd/internal/flipbook"
	"github.com/pagecurl/flipbookd/internal/services"
)

var (
	uploadsInstance   *services.UploadsFunction
	uploadsOnce       sync.Once
	uploadsInitErr    error
	flipbooksInstance *services.FlipbooksFunction
	flipbooksOnce     sync.Once
	flipbooksInitErr  error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("GenerateUploadUrl", generateUploadURL)
	functions.HTTP("ValidateFile", validateFile)
	functions.HTTP("CreateFlipbook", createFlipbook)
	functions.HTTP("GetFlipbook", getFlipbook)
	functions.HTTP("ListFlipbooks", listFlipbooks)
	functions.HTTP("DeleteFlipbook", deleteFlipbook)
	functions.HTTP("UpdateFlipbookTitle", updateFlipbookTitle)
}

// main is required by the Go Functions Framework.
func main() {}

func uploads() (*services.UploadsFunction, error) {
	uploadsOnce.Do(func() {
		uploadsInstance, uploadsInitErr = services.NewUploads(context.Background())
	})
	if uploadsInitErr != nil {
		slog.Error("Critical error during function initialization", "error", uploadsInitErr)
	}
	return uploadsInstance, uploadsInitErr
}

func flipbooks() (*services.FlipbooksFunction, error) {
	flipbooksOnce.Do(func() {
		flipbooksInstance, flipbooksInitErr = services.NewFlipbooks(context.Background())
	})
	if flipbooksInitErr != nil {
		slog.Error("Critical error during function initialization", "error", flipbooksInitErr)
	}
	return flipbooksInstance, flipbooksInitErr
}

func generateUploadURL(w http.ResponseWriter, r *http.Request) {
	svc, err := uploads()
	if err != nil {
		writeError(w, err)
		return
	}
	var req flipbook.UploadURLRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := svc.GenerateUploadURL(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func validateFile(w http.ResponseWriter, r *http.Request) {
	svc, err := uploads()
	if err != nil {
		writeError(w, err)
		return
	}
	var req flipbook.ValidateFileRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := svc.ValidateFile(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func createFlipbook(w http.ResponseWriter, r *http.Request) {
	svc, err := flipbooks()
	if err != nil {
		writeError(w, err)
		return
	}
	var req flipbook.CreateFlipbookRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func getFlipbook(w http.ResponseWriter, r *http.Request) {
	svc, err := flipbooks()
	if err != nil {
		writeError(w, err)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id query parameter is required", http.StatusBadRequest)
		return
	}
	resp, err := svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func listFlipbooks(w http.ResponseWriter, r *http.Request) {
	svc, err := flipbooks()
	if err != nil {
		writeError(w, err)
		return
	}
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if identifier == "" {
		http.Error(w, "identifier query parameter is required", http.StatusBadRequest)
		return
	}
	resp, err := svc.List(r.Context(), identifier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func deleteFlipbook(w http.ResponseWriter, r *http.Request) {
	svc, err := flipbooks()
	if err != nil {
		writeError(w, err)
		return
	}
	var req flipbook.RemoveFlipbookRequest
	if !decode(w, r, &req) {
		return
	}
	if err := svc.Remove(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func updateFlipbookTitle(w http.ResponseWriter, r *http.Request) {
	svc, err := flipbooks()
	if err != nil {
		writeError(w, err)
		return
	}
	var req flipbook.UpdateTitleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := svc.UpdateTitle(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Failed to decode request body", "error", err)
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response body", "error", err)
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var verr *flipbook.ValidationError
	var derr *flipbook.DecodeError
	switch {
	case errors.Is(err, flipbook.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, flipbook.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, flipbook.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, flipbook.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &verr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &derr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
