package httpapi

import "mime"

// extraTypes covers the handful of extensions a blob proxy commonly
// serves that the local mime.types database may not carry.
var extraTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".pdf":  "application/pdf",
}

// contentTypeForExt guesses a Content-Type from a file extension
// (including the leading dot), falling back to application/octet-stream.
func contentTypeForExt(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}
