// Package attachment resolves attachment references into mailer attachments.
//
// The HTTP and CLI surfaces accept references instead of raw bytes:
//
//	{"source": "s3", "key": "invoices/2026/03.pdf"}
//	{"source": "file", "key": "logo.png", "inline": true, "content_id": "logo"}
//
// A [Resolver] maps each reference to a registered [Source] and fetches the
// content, enforcing a per-attachment size limit.
package attachment

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// DefaultMaxSize matches the MIME encoder's per-attachment limit.
const DefaultMaxSize int64 = 25 << 20

// Source fetches attachment content by key.
type Source interface {
	Fetch(ctx context.Context, key string) (mailer.Attachment, error)
}

// Ref points to attachment content in a named source.
type Ref struct {
	Source    string `json:"source"`
	Key       string `json:"key"`
	Filename  string `json:"filename,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	Inline    bool   `json:"inline,omitempty"`
}

// Resolver turns references into attachments.
type Resolver struct {
	sources map[string]Source
}

// NewResolver creates a resolver. Sources are registered by name, for
// example "s3" or "file".
func NewResolver(sources map[string]Source) *Resolver {
	r := &Resolver{sources: make(map[string]Source, len(sources))}
	for name, src := range sources {
		if src != nil {
			r.sources[name] = src
		}
	}
	return r
}

// Resolve fetches every reference in order. The first failure aborts.
func (r *Resolver) Resolve(ctx context.Context, refs []Ref) ([]mailer.Attachment, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	out := make([]mailer.Attachment, 0, len(refs))
	for _, ref := range refs {
		a, err := r.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, ref Ref) (mailer.Attachment, error) {
	src, ok := r.sources[ref.Source]
	if !ok {
		return mailer.Attachment{}, fmt.Errorf("%w: %q", ErrUnknownSource, ref.Source)
	}
	if strings.TrimSpace(ref.Key) == "" {
		return mailer.Attachment{}, ErrEmptyKey
	}

	a, err := src.Fetch(ctx, ref.Key)
	if err != nil {
		return mailer.Attachment{}, err
	}
	if ref.Filename != "" {
		a.Filename = ref.Filename
	}
	if ref.Inline {
		a.Inline = true
		a.ContentID = ref.ContentID
		if a.ContentID == "" {
			a.ContentID = strings.TrimSuffix(a.Filename, path.Ext(a.Filename))
		}
	}
	return a, nil
}

// build applies the default content type detection of mailer.NewAttachment
// when the source did not report one.
func build(key string, content []byte, contentType string) mailer.Attachment {
	a := mailer.NewAttachment(path.Base(key), content)
	if contentType != "" {
		a.ContentType = contentType
	}
	return a
}
