package templates

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header of a template file.
type Frontmatter struct {
	Extra     map[string]any `yaml:",inline"`
	Sanitize  *bool          `yaml:"sanitize"`
	Subject   string         `yaml:"subject"`
	Priority  string         `yaml:"priority"`
	Layout    string         `yaml:"layout"`
	Format    string         `yaml:"format"`
	Preheader string         `yaml:"preheader"`
}

// Document is a template file split into frontmatter and body.
type Document struct {
	Frontmatter Frontmatter
	Body        string
}

var delimiter = []byte("---")

// ParseDocument extracts the frontmatter and body of a template file.
// Content without a leading delimiter is returned as body with empty frontmatter.
func ParseDocument(content []byte) (*Document, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return &Document{Body: string(content)}, nil
	}

	afterFirst := bytes.TrimPrefix(content, delimiter)
	afterFirst = bytes.TrimLeft(afterFirst, "\n\r")
	if len(afterFirst) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	endIdx := bytes.Index(afterFirst, delimiter)
	if endIdx == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	header := afterFirst[:endIdx]
	bodyStart := endIdx + len(delimiter)
	// Skip one line break after the closing delimiter.
	if bodyStart < len(afterFirst) {
		if afterFirst[bodyStart] == '\r' && bodyStart+1 < len(afterFirst) && afterFirst[bodyStart+1] == '\n' {
			bodyStart += 2
		} else if afterFirst[bodyStart] == '\n' {
			bodyStart++
		}
	}

	doc := &Document{Body: string(afterFirst[bodyStart:])}
	if len(bytes.TrimSpace(header)) > 0 {
		if err := yaml.Unmarshal(header, &doc.Frontmatter); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return doc, nil
}
