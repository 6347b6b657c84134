// Package gemtext parses text/gemini documents into typed lines.
package gemtext

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/remi/internal/location"
)

// Line markers, matched at the start of a line.
const (
	toggleMarker  = "```"
	linkMarker    = "=>"
	headingMarker = '#'
	quoteMarker   = ">"
	listMarker    = "* "
)

var ErrInvalidEncoding = errors.New("invalid UTF-8 in document")

// Kind tags a Line.
type Kind int

const (
	KindText Kind = iota
	KindHeading
	KindLink
	KindListItem
	KindQuote
	KindPreformatToggle
	KindPreformatted
)

var kindNames = [...]string{
	KindText:            "text",
	KindHeading:         "heading",
	KindLink:            "link",
	KindListItem:        "list_item",
	KindQuote:           "quote",
	KindPreformatToggle: "preformat_toggle",
	KindPreformatted:    "preformatted",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("gemtext: unknown line kind %q", b)
}

// Line is one classified line of a document.
//
// Text holds the content for every kind: the label of a link, the heading
// text, the alt text of an opening toggle. Level is set for headings only and
// Target for links only.
type Line struct {
	Kind   Kind   `json:"kind"`
	Text   string `json:"text"`
	Level  int    `json:"level,omitempty"`
	Target string `json:"target,omitempty"`
}

// Constructors for the line variants.
func Text(s string) Line               { return Line{Kind: KindText, Text: s} }
func Heading(level int, s string) Line { return Line{Kind: KindHeading, Level: level, Text: s} }
func ListItem(s string) Line           { return Line{Kind: KindListItem, Text: s} }
func Quote(s string) Line              { return Line{Kind: KindQuote, Text: s} }
func PreformatToggle(alt string) Line  { return Line{Kind: KindPreformatToggle, Text: alt} }
func Preformatted(s string) Line       { return Line{Kind: KindPreformatted, Text: s} }

// Link builds a link line; an empty label defaults to the target.
func Link(target, label string) Line {
	if label == "" {
		label = target
	}
	return Line{Kind: KindLink, Target: target, Text: label}
}

// Document is a parsed gemtext body.
type Document struct {
	Location location.Location `json:"location"`
	Lines    []Line            `json:"lines"`
	// Lossy is set when invalid UTF-8 was replaced while decoding.
	Lossy bool `json:"lossy,omitempty"`
}

// Title returns the text of the first heading, preferring level 1.
func (d *Document) Title() string {
	var fallback string
	for _, l := range d.Lines {
		if l.Kind != KindHeading {
			continue
		}
		if l.Level == 1 {
			return l.Text
		}
		if fallback == "" {
			fallback = l.Text
		}
	}
	return fallback
}

// Links returns the link lines in document order.
func (d *Document) Links() []Line {
	var out []Line
	for _, l := range d.Lines {
		if l.Kind == KindLink {
			out = append(out, l)
		}
	}
	return out
}

// Decode converts body to a string. Invalid sequences are replaced with
// U+FFFD and ErrInvalidEncoding is returned alongside the usable text.
func Decode(body []byte) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	return strings.ToValidUTF8(string(body), string(utf8.RuneError)), ErrInvalidEncoding
}

// Parse classifies every line of body. It never fails: undecodable bytes are
// replaced and flagged through Document.Lossy.
func Parse(body []byte, loc location.Location) *Document {
	text, err := Decode(body)
	doc := &Document{
		Location: loc,
		Lines:    ParseLines(text),
		Lossy:    errors.Is(err, ErrInvalidEncoding),
	}
	return doc
}

// ParseLines runs the two-state line classifier over already decoded text.
func ParseLines(text string) []Line {
	raw := strings.Split(text, "\n")
	if n := len(raw); n > 0 && raw[n-1] == "" {
		raw = raw[:n-1]
	}

	lines := make([]Line, 0, len(raw))
	preformatted := false
	for _, l := range raw {
		l = strings.TrimSuffix(l, "\r")

		if strings.HasPrefix(l, toggleMarker) {
			if preformatted {
				lines = append(lines, PreformatToggle(""))
			} else {
				lines = append(lines, PreformatToggle(strings.TrimSpace(l[len(toggleMarker):])))
			}
			preformatted = !preformatted
			continue
		}
		if preformatted {
			lines = append(lines, Preformatted(l))
			continue
		}
		lines = append(lines, classify(l))
	}
	return lines
}

func classify(l string) Line {
	switch {
	case strings.HasPrefix(l, linkMarker):
		return parseLink(l)
	case l != "" && l[0] == headingMarker:
		level := 0
		for level < 3 && level < len(l) && l[level] == headingMarker {
			level++
		}
		return Heading(level, strings.TrimSpace(l[level:]))
	case strings.HasPrefix(l, quoteMarker):
		return Quote(strings.TrimSpace(l[len(quoteMarker):]))
	case strings.HasPrefix(l, listMarker):
		return ListItem(strings.TrimSpace(l[len(listMarker):]))
	default:
		return Text(l)
	}
}

func parseLink(l string) Line {
	rest := strings.TrimLeftFunc(l[len(linkMarker):], unicode.IsSpace)
	if rest == "" {
		return Text(l)
	}
	target, label := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		target, label = rest[:i], strings.TrimSpace(rest[i:])
	}
	return Link(target, label)
}
