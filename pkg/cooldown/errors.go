package cooldown

import "errors"

var (
	ErrClosed     = errors.New("cooldown: store is closed")
	ErrEmptyKey   = errors.New("cooldown: empty key")
	ErrNilClient  = errors.New("cooldown: nil redis client")
	ErrStoreError = errors.New("cooldown: store operation failed")
)
