package directory

import "errors"

var (
	ErrFailedToLoadDirectory = errors.New("failed to load directory file")
	ErrInvalidDirectory      = errors.New("invalid directory file")
)
