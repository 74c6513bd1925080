package ssr

import (
	"net/http"
	"strings"
)

// DefaultMarker is the placeholder replaced by the rendered fragment.
const DefaultMarker = "<!-- ssr-app -->"

const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Response is a fully composed HTTP response.
type Response struct {
	Status      int
	ContentType string
	Body        string
}

// WriteTo commits the response to w.
func (r Response) WriteTo(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", r.ContentType)
	w.WriteHeader(r.Status)
	_, err := w.Write([]byte(r.Body))
	return err
}

// Compose replaces the first occurrence of marker in template with
// fragment. A template without the marker is returned unchanged and the
// fragment is dropped.
func Compose(template, marker, fragment string) Response {
	body := template
	if marker != "" {
		body = strings.Replace(template, marker, fragment, 1)
	}
	return Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeHTML,
		Body:        body,
	}
}

// HasMarker reports whether template contains marker.
func HasMarker(template, marker string) bool {
	return marker != "" && strings.Contains(template, marker)
}
