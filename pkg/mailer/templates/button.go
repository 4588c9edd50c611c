package templates

import (
	"bytes"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// ButtonNode is a call-to-action link written as [!button|Label](URL) or
// [!button:#rrggbb|Label](URL).
type ButtonNode struct {
	ast.BaseInline
	URL   []byte
	Label []byte
	Color []byte // optional background colour
}

// KindButton is the node kind for ButtonNode.
var KindButton = ast.NewNodeKind("Button")

func (n *ButtonNode) Kind() ast.NodeKind {
	return KindButton
}

func (n *ButtonNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"URL":   string(n.URL),
		"Label": string(n.Label),
		"Color": string(n.Color),
	}, nil)
}

var (
	buttonPrefix = []byte("[!button")
	colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

type buttonParser struct{}

func (p *buttonParser) Trigger() []byte {
	return []byte{'['}
}

func (p *buttonParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, buttonPrefix) {
		return nil
	}

	pos := len(buttonPrefix)
	var color []byte
	if pos < len(line) && line[pos] == ':' {
		end := bytes.IndexByte(line[pos:], '|')
		if end == -1 {
			return nil
		}
		color = line[pos+1 : pos+end]
		if !colorPattern.Match(color) {
			return nil
		}
		pos += end
	}
	if pos >= len(line) || line[pos] != '|' {
		return nil
	}
	pos++

	labelEnd := bytes.IndexByte(line[pos:], ']')
	if labelEnd == -1 {
		return nil
	}
	label := line[pos : pos+labelEnd]
	pos += labelEnd + 1

	if pos >= len(line) || line[pos] != '(' {
		return nil
	}
	urlEnd := bytes.IndexByte(line[pos:], ')')
	if urlEnd == -1 {
		return nil
	}
	url := line[pos+1 : pos+urlEnd]

	block.Advance(pos + urlEnd + 1)

	return &ButtonNode{URL: url, Label: label, Color: color}
}

type buttonRenderer struct {
	color string
	html.Config
}

func (r *buttonRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindButton, r.renderButton)
}

func (r *buttonRenderer) renderButton(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	n := node.(*ButtonNode)
	color := r.color
	if len(n.Color) > 0 {
		color = string(n.Color)
	}
	_, _ = w.WriteString(Button(string(n.Label), string(n.URL), color))
	return ast.WalkContinue, nil
}

// ButtonExtension renders button links as table-based email buttons.
type ButtonExtension struct {
	// Color is the default background colour. Default: the layout primary colour.
	Color string
}

func (e *ButtonExtension) Extend(m goldmark.Markdown) {
	color := e.Color
	if color == "" {
		color = DefaultPrimaryColor
	}
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&buttonParser{}, 50),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&buttonRenderer{Config: html.NewConfig(), color: color}, 50),
	))
}

// NewButtonExtension creates the button extension with the given default
// colour. An empty colour selects DefaultPrimaryColor.
func NewButtonExtension(color string) goldmark.Extender {
	return &ButtonExtension{Color: color}
}
