package templates

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
)

// Layout defaults.
const (
	DefaultPrimaryColor    = "#3498db"
	DefaultBackgroundColor = "#f4f4f4"
	DefaultTextColor       = "#333333"
	DefaultFontFamily      = "Arial, Helvetica, sans-serif"
)

// Layout wraps HTML bodies into a table-based responsive email shell.
// Header and Footer are trusted HTML fragments.
type Layout struct {
	Preheader       string
	Header          string
	Footer          string
	PrimaryColor    string
	BackgroundColor string
	TextColor       string
	FontFamily      string
}

// Layout templates use [[ ]] delimiters so {{placeholders}} pass through untouched.
var shellTemplate = template.Must(template.New("shell").Delims("[[", "]]").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Email</title>
</head>
<body style="margin: 0; padding: 0; font-family: [[.FontFamily]]; background-color: [[.BackgroundColor]];">
    [[- if .Preheader]]
    <div style="display:none;font-size:1px;color:#ffffff;line-height:1px;max-height:0px;max-width:0px;opacity:0;overflow:hidden;">[[.Preheader]]</div>
    [[- end]]
    <table role="presentation" cellpadding="0" cellspacing="0" width="100%" style="background-color: [[.BackgroundColor]];">
        <tr>
            <td align="center" style="padding: 40px 10px;">
                <table role="presentation" cellpadding="0" cellspacing="0" width="600" style="background-color: #ffffff; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1);">
                    [[- if .Header]]
                    <tr>
                        <td style="padding: 30px 40px; text-align: center; border-bottom: 1px solid #eeeeee;">
                            [[.Header]]
                        </td>
                    </tr>
                    [[- end]]
                    <tr>
                        <td style="padding: 40px; color: [[.TextColor]]; font-size: 16px; line-height: 1.6;">
                            [[.Body]]
                        </td>
                    </tr>
                    [[- if .Footer]]
                    <tr>
                        <td style="padding: 20px 40px; text-align: center; border-top: 1px solid #eeeeee; background-color: #fafafa; border-radius: 0 0 8px 8px;">
                            [[.Footer]]
                        </td>
                    </tr>
                    [[- end]]
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`))

type shellData struct {
	Preheader       string
	Header          template.HTML
	Body            template.HTML
	Footer          template.HTML
	FontFamily      template.CSS
	BackgroundColor template.CSS
	TextColor       template.CSS
}

// Wrap renders body inside the layout.
func (l Layout) Wrap(body string) (string, error) {
	data := shellData{
		Preheader:       l.Preheader,
		Header:          template.HTML(l.Header),
		Body:            template.HTML(body),
		Footer:          template.HTML(l.Footer),
		FontFamily:      template.CSS(orDefault(l.FontFamily, DefaultFontFamily)),
		BackgroundColor: template.CSS(orDefault(l.BackgroundColor, DefaultBackgroundColor)),
		TextColor:       template.CSS(orDefault(l.TextColor, DefaultTextColor)),
	}

	var buf bytes.Buffer
	if err := shellTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLayout, err)
	}
	return buf.String(), nil
}

// Primary returns the primary colour of the layout.
func (l Layout) Primary() string {
	return orDefault(l.PrimaryColor, DefaultPrimaryColor)
}

// TextHeader returns a heading fragment coloured with the layout primary colour.
func (l Layout) TextHeader(text string) string {
	return fmt.Sprintf(`<h1 style="color: %s; font-size: 24px; margin: 0; padding: 20px 0;">%s</h1>`,
		l.Primary(), html.EscapeString(text))
}

// LogoHeader returns a centred logo image fragment.
func LogoHeader(logoURL, alt string, width int) string {
	if alt == "" {
		alt = "Logo"
	}
	if width <= 0 {
		width = 150
	}
	return fmt.Sprintf(`<img src="%s" alt="%s" width="%d" style="display: block; margin: 0 auto;" />`,
		html.EscapeString(logoURL), html.EscapeString(alt), width)
}

// SimpleFooter returns a copyright footer with an optional unsubscribe link.
func SimpleFooter(company string, year int, unsubscribeURL string) string {
	var unsubscribe string
	if unsubscribeURL != "" {
		unsubscribe = fmt.Sprintf(`<br><a href="%s" style="color: #999999;">Unsubscribe</a>`, html.EscapeString(unsubscribeURL))
	}
	return fmt.Sprintf(`<p style="color: #999999; font-size: 12px;">&copy; %d %s. All rights reserved.%s</p>`,
		year, html.EscapeString(company), unsubscribe)
}

// Button returns a table-based call-to-action button.
func Button(label, url, color string) string {
	return fmt.Sprintf(`<table role="presentation" cellpadding="0" cellspacing="0" style="margin: 20px auto;">
    <tr>
        <td style="background-color: %s; border-radius: 6px; padding: 12px 30px;">
            <a href="%s" style="color: #ffffff; text-decoration: none; font-weight: bold; font-size: 16px; display: inline-block;">%s</a>
        </td>
    </tr>
</table>`, orDefault(color, DefaultPrimaryColor), html.EscapeString(url), html.EscapeString(label))
}

// Heading returns a heading fragment of the given level (1 to 4).
func Heading(text string, level int, color string) string {
	sizes := map[int]string{1: "28px", 2: "22px", 3: "18px"}
	level = min(max(level, 1), 4)
	size, ok := sizes[level]
	if !ok {
		size = "16px"
	}
	tag := "h" + strconv.Itoa(level)
	return fmt.Sprintf(`<%s style="color: %s; font-size: %s; margin: 0 0 15px 0;">%s</%s>`,
		tag, orDefault(color, DefaultTextColor), size, html.EscapeString(text), tag)
}

// Paragraph returns a paragraph fragment. text is trusted HTML.
func Paragraph(text string) string {
	return `<p style="margin: 0 0 15px 0;">` + text + `</p>`
}

// Divider returns a horizontal rule fragment.
func Divider() string {
	return `<hr style="border: none; border-top: 1px solid #eeeeee; margin: 20px 0;" />`
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
