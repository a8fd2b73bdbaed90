package httpapi

import "net/http"

// Error is the taxonomy used at the HTTP boundary: a status code and a
// plain reason string, written as both the response body and the
// X-Reason header.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// NotFound builds a 404 with the given reason.
func NotFound(reason string) *Error { return &Error{Status: http.StatusNotFound, Reason: reason} }

// RangeNotSatisfiable builds a 416.
func RangeNotSatisfiable(reason string) *Error {
	return &Error{Status: http.StatusRequestedRangeNotSatisfiable, Reason: reason}
}

// Forbidden builds a 403.
func Forbidden(reason string) *Error { return &Error{Status: http.StatusForbidden, Reason: reason} }

// BadRequest builds a 400.
func BadRequest(reason string) *Error { return &Error{Status: http.StatusBadRequest, Reason: reason} }

// MethodNotAllowed builds a 405.
func MethodNotAllowed(reason string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Reason: reason}
}

// Internal builds a 500 with a sanitized reason; the underlying error
// should be logged by the caller, not embedded in the response.
func Internal(reason string) *Error {
	return &Error{Status: http.StatusInternalServerError, Reason: reason}
}

// WriteError writes e as both the response body and the X-Reason header,
// with CORS allowed so error responses are readable cross-origin too.
func WriteError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-Reason", e.Reason)
	w.WriteHeader(e.Status)
	w.Write([]byte(e.Reason))
}
