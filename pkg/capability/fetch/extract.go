package fetch

import (
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// Extraction is the usable text of a page plus its metadata.
type Extraction struct {
	Title    string
	Byline   string
	SiteName string
	Image    string
	Excerpt  string
	Source   string
	Text     string
}

type extractor func(p *Page) (Extraction, error)

func extractHTML(p *Page) (Extraction, error) {
	article, err := readability.FromReader(strings.NewReader(p.Body), p.URL)
	if err != nil {
		return Extraction{}, err
	}
	return Extraction{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		SiteName: strings.TrimSpace(article.SiteName),
		Image:    strings.TrimSpace(article.Image),
		Excerpt:  strings.TrimSpace(article.Excerpt),
		Source:   p.URL.String(),
		Text:     normalizeText(article.TextContent),
	}, nil
}

func extractPlain(p *Page) (Extraction, error) {
	return Extraction{Source: p.URL.String(), Text: normalizeText(p.Body)}, nil
}

// extractorFor picks the extraction strategy for a media type, or nil when
// the content cannot be turned into text.
func extractorFor(mt string) extractor {
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return extractHTML
	case strings.HasPrefix(mt, "text/"):
		return extractPlain
	default:
		return nil
	}
}

// normalizeText trims lines and collapses runs of blank lines.
func normalizeText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// truncate cuts s to at most max runes. max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Format renders the extraction as the text handed back to the agent.
func (e Extraction) Format() string {
	var b strings.Builder
	header := []struct{ k, v string }{
		{"Title", e.Title},
		{"Author", e.Byline},
		{"Site", e.SiteName},
		{"Image", e.Image},
		{"Source", e.Source},
	}
	for _, h := range header {
		if h.v == "" {
			continue
		}
		b.WriteString(h.k)
		b.WriteString(": ")
		b.WriteString(h.v)
		b.WriteByte('\n')
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(e.Text)
	return b.String()
}
