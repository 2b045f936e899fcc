package handler

import "net/http"

type errorResponse struct {
	err error
}

// Render returns the error so Wrap hands it to the configured ErrorHandler.
func (e errorResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}

// Error defers err to the ErrorHandler, which maps it to a status code and
// writes the envelope or error page. Use it for domain errors that an
// ErrorMapper knows about; JSONError only understands HTTPError values.
func Error(err error) Response {
	if err == nil {
		err = ErrInternalServerError
	}
	return errorResponse{err: err}
}
