package gemtext

import (
	"bytes"
	"strings"
)

// Encode writes lines back as gemtext. Parsing the output yields the same
// lines, except that a link whose label equals its target is written without
// a label. Line breaks inside a line's text or target are written as spaces,
// so each Line produces exactly one output line.
func Encode(lines []Line) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		l.Text, l.Target = flatten(l.Text), flatten(l.Target)
		switch l.Kind {
		case KindHeading:
			level := min(max(l.Level, 1), 3)
			buf.WriteString(strings.Repeat(string(headingMarker), level))
			buf.WriteByte(' ')
			buf.WriteString(l.Text)
		case KindLink:
			buf.WriteString(linkMarker)
			buf.WriteByte(' ')
			buf.WriteString(l.Target)
			if l.Text != "" && l.Text != l.Target {
				buf.WriteByte(' ')
				buf.WriteString(l.Text)
			}
		case KindListItem:
			buf.WriteString(listMarker)
			buf.WriteString(l.Text)
		case KindQuote:
			buf.WriteString(quoteMarker)
			buf.WriteByte(' ')
			buf.WriteString(l.Text)
		case KindPreformatToggle:
			buf.WriteString(toggleMarker)
			buf.WriteString(l.Text)
		case KindPreformatted, KindText:
			buf.WriteString(l.Text)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func flatten(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return lineBreaks.Replace(s)
}
