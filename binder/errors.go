package binder

import "errors"

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrInvalidQuery         = errors.New("invalid query parameter")
	ErrInvalidPath          = errors.New("invalid path parameter")
	ErrInvalidHeader        = errors.New("invalid header value")
	ErrBodyTooLarge         = errors.New("request body too large")

	// ErrBinderNotApplicable lets a binder step aside, e.g. JSON on a bodiless request.
	ErrBinderNotApplicable = errors.New("binder not applicable")
)

// IsBindError reports whether err came from a binder rather than the handler.
func IsBindError(err error) bool {
	for _, target := range []error{ErrUnsupportedMediaType, ErrInvalidJSON, ErrInvalidQuery, ErrInvalidPath, ErrInvalidHeader, ErrBodyTooLarge} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
