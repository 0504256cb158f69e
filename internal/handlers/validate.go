package handlers

import (
	"mime"
	"net/http"
)

const contentTypeJSON = "application/json"

// checkContentType пропускает запрос без Content-Type,
// но отклоняет явно указанный не-JSON тип
func checkContentType(r *http.Request, target string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	return mediaType == target
}
