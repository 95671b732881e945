package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts HTML mail bodies to plain text
type HTMLParser struct {
	spaceRegex     *regexp.Regexp
	blankRunRegex  *regexp.Regexp
	invisibleRegex *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		spaceRegex:    regexp.MustCompile(`[^\S\n]+`),
		blankRunRegex: regexp.MustCompile(`\n{3,}`),
		// Zero-width and other invisible characters used as preheader padding
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{115F}\x{1160}\x{17B4}\x{17B5}\x{180E}\x{2060}-\x{2064}\x{206A}-\x{206F}\x{FE00}-\x{FE0F}\x{FFF0}-\x{FFF8}]+`),
	}
}

// Parse converts HTML to clean plain text
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	// Block elements start on a new line
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, table").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	return p.Clean(doc.Text()), nil
}

// Clean normalizes whitespace of plain text
func (p *HTMLParser) Clean(text string) string {
	text = p.invisibleRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = p.spaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	clean := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	text = strings.Join(clean, "\n")
	text = p.blankRunRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
