package attachment

import "errors"

var (
	ErrInvalidConfig = errors.New("attachment: invalid configuration")
	ErrUnknownSource = errors.New("attachment: unknown source")
	ErrEmptyKey      = errors.New("attachment: empty key")
	ErrNotFound      = errors.New("attachment: not found")
	ErrAccessDenied  = errors.New("attachment: access denied")
	ErrTooLarge      = errors.New("attachment: exceeds size limit")
	ErrFetchFailed   = errors.New("attachment: fetch failed")
)
