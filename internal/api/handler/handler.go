package handler

import (
	"net/http"
	"strconv"
)

// actorFrom resolves who is performing the request, for the document
// metadata stamps. The gateway in front of this service injects the
// header.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-User"); actor != "" {
		return actor
	}
	return "anonymous"
}

// paginationFrom reads the page_size/page query parameters; zero values
// fall back to the store defaults
func paginationFrom(r *http.Request) (pageSize, pageNumber int) {
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		pageSize = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		pageNumber = v
	}
	return pageSize, pageNumber
}
