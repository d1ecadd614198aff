package email

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Bodies picks the MIME parts for rendered content. Content containing any
// HTML element goes out as HTML with a plain-text alternative derived from
// it; anything else goes out as plain text only.
func Bodies(content string) (text, htmlBody string) {
	if !hasMarkup(content) {
		return content, ""
	}
	return PlainText(content), content
}

// hasMarkup reports whether s contains a known HTML element. Angle-bracketed
// addresses such as <alice@example.com> are not elements.
func hasMarkup(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != 0 {
				return true
			}
		}
	}
}

// PlainText flattens an HTML fragment: block elements become line breaks,
// links keep their target in parentheses, script and style are dropped.
func PlainText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var (
		b         strings.Builder
		skip      int
		href      string
		linkStart int
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidy(b.String())

		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head, atom.Title:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Br, atom.Li, atom.Tr:
				b.WriteByte('\n')
			case atom.P, atom.Div, atom.Table, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteString("\n\n")
			case atom.A:
				href = attr(tok, "href")
				linkStart = b.Len()
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script, atom.Style, atom.Head, atom.Title:
				if skip > 0 {
					skip--
				}
			case atom.P, atom.Div, atom.Table, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteString("\n\n")
			case atom.A:
				label := strings.TrimSpace(b.String()[linkStart:])
				if href != "" && label != href {
					b.WriteString(" (" + href + ")")
				}
				href = ""
			}
		}
	}
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// tidy collapses runs of whitespace within lines and runs of blank lines.
func tidy(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
