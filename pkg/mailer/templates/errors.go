package templates

import "errors"

var (
	// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
	ErrInvalidFrontmatter = errors.New("templates: invalid frontmatter")

	// ErrInvalidManifest indicates a manifest that cannot be decoded or
	// references something that does not exist.
	ErrInvalidManifest = errors.New("templates: invalid manifest")

	// ErrUnknownFormat indicates a template format other than html, text or markdown.
	ErrUnknownFormat = errors.New("templates: unknown format")

	// ErrLayoutNotFound indicates a template referencing an unregistered layout.
	ErrLayoutNotFound = errors.New("templates: layout not found")

	// ErrLayout indicates a layout failed to render.
	ErrLayout = errors.New("templates: failed to render layout")

	// ErrMarkdown indicates markdown conversion failed.
	ErrMarkdown = errors.New("templates: failed to convert markdown")
)
