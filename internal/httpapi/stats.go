package httpapi

import (
	"context"
	"html/template"
	"net/http"
)

var statsPageTemplate = template.Must(template.New("stats").Parse(`<!DOCTYPE html>
<html>
<head><title>blob cache</title></head>
<body>
<h1>blob cache</h1>
<p>{{.BlobCount}} blobs, {{.TotalBytes}} bytes</p>
</body>
</html>
`))

type statsPageData struct {
	BlobCount  int64
	TotalBytes int64
}

// handleStats implements GET /: a static HTML page reporting blob count
// and total bytes.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := context.Background()

	total, err := h.cache.SizeTotal(ctx)
	if err != nil {
		h.logger.Warn("handleStats: failed to read total cache size", "error", err)
	}
	count, err := h.cache.Count(ctx)
	if err != nil {
		h.logger.Warn("handleStats: failed to count cache entries", "error", err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	statsPageTemplate.Execute(w, statsPageData{BlobCount: count, TotalBytes: total})
}
