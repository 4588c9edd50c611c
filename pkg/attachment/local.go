package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Local reads attachments from a directory. Keys cannot escape it.
type Local struct {
	root    *os.Root
	maxSize int64
}

// NewLocal opens dir as an attachment source. maxSize <= 0 uses
// DefaultMaxSize.
func NewLocal(dir string, maxSize int64) (*Local, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Local{root: root, maxSize: maxSize}, nil
}

// Fetch reads the file at key.
func (l *Local) Fetch(ctx context.Context, key string) (mailer.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return mailer.Attachment{}, err
	}

	f, err := l.root.Open(filepath.FromSlash(key))
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return mailer.Attachment{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		case errors.Is(err, fs.ErrPermission):
			return mailer.Attachment{}, fmt.Errorf("%w: %s", ErrAccessDenied, key)
		}
		// Paths escaping the root land here.
		return mailer.Attachment{}, fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if info.IsDir() {
		return mailer.Attachment{}, fmt.Errorf("%w: %s is a directory", ErrNotFound, key)
	}
	if info.Size() > l.maxSize {
		return mailer.Attachment{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, info.Size())
	}

	data, err := io.ReadAll(io.LimitReader(f, l.maxSize+1))
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > l.maxSize {
		return mailer.Attachment{}, fmt.Errorf("%w: %s", ErrTooLarge, key)
	}
	return build(key, data, ""), nil
}

// Close releases the directory handle.
func (l *Local) Close() error {
	return l.root.Close()
}
