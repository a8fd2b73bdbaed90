package httpapi

import (
	"net/http"

	"blobcache/internal/model"
)

// handleDelete implements DELETE /<64hex>: IP-gated, 204 on success, 404
// if the digest was not present.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.allowedSource(r) {
		WriteError(w, Forbidden("Delete not allowed from this address"))
		return
	}

	d, _, err := model.ParseBlobPath(r.PathValue("digest"))
	if err != nil {
		WriteError(w, BadRequest("Invalid digest"))
		return
	}

	if !h.cache.Delete(d) {
		WriteError(w, NotFound("Blob not found"))
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusNoContent)
}
