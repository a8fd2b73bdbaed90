package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"blobcache/internal/model"
)

type uploadDescriptor struct {
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Uploaded int64  `json:"uploaded"`
}

// handleUpload implements PUT /upload: stream the body to a temp file
// while hashing it, then store at /<computed_D> and return a JSON
// descriptor. IP-gated by the allowed-upload range list.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !h.allowedSource(r) {
		WriteError(w, Forbidden("Upload not allowed from this address"))
		return
	}

	tempPath := h.cache.TempPath()
	tempFile, err := os.Create(tempPath)
	if err != nil {
		h.logger.Error("handleUpload: failed to create temp file", "error", err)
		WriteError(w, Internal("Internal error"))
		return
	}

	hasher := sha256.New()
	size, err := io.Copy(tempFile, io.TeeReader(r.Body, hasher))
	closeErr := tempFile.Close()
	if err != nil || closeErr != nil {
		os.Remove(tempPath)
		h.logger.Warn("handleUpload: failed to write upload body", "error", err)
		WriteError(w, Internal("Internal error"))
		return
	}

	digestHex := hex.EncodeToString(hasher.Sum(nil))

	if declared := r.Header.Get("X-SHA-256"); declared != "" && !strings.EqualFold(declared, digestHex) {
		os.Remove(tempPath)
		WriteError(w, BadRequest("Digest mismatch"))
		return
	}

	d, err := model.ParseDigest(digestHex)
	if err != nil {
		os.Remove(tempPath)
		WriteError(w, Internal("Internal error"))
		return
	}

	if err := os.Rename(tempPath, h.cache.BlobPath(d)); err != nil {
		os.Remove(tempPath)
		h.logger.Error("handleUpload: failed to move uploaded file into place", "error", err)
		WriteError(w, Internal("Internal error"))
		return
	}

	uploadedAt := time.Now().Unix()
	if err := h.cache.WriteAndRecord(d, size, &uploadedAt); err != nil {
		h.logger.Warn("handleUpload: failed to record upload metadata", "digest", d, "error", err)
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(uploadDescriptor{
		SHA256:   d.String(),
		Size:     size,
		Type:     contentType,
		Uploaded: uploadedAt,
	})
}
