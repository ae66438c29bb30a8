package jsonapi

import (
	"encoding/json"
	"net/http"
)

// WriteDocument writes a JSON:API document to the response.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// WriteCollection writes a collection response with optional pagination.
func WriteCollection(w http.ResponseWriter, status int, resources []Resource, pagination *Pagination) {
	WriteDocument(w, status, NewCollectionDocument(resources, pagination))
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		WriteDocument(w, http.StatusInternalServerError, NewErrorDocument(ErrInternal("")))
		return
	}
	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteDocument(w, status, NewErrorDocument(errs...))
}

// WriteAccepted writes a 202 Accepted response (for async operations).
func WriteAccepted(w http.ResponseWriter, meta Meta) {
	WriteDocument(w, http.StatusAccepted, NewDocument().MetaAll(meta).Build())
}

// WriteInternalError is a convenience for 500 errors.
func WriteInternalError(w http.ResponseWriter, detail string) {
	WriteError(w, ErrInternal(detail))
}
