// Package format builds the "format" parameter of text messages and escapes text for parse modes.
package format

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// ParseMode selects server-side parsing of message text.
type ParseMode string

const (
	MarkdownV2 ParseMode = "MarkdownV2"
	HTML       ParseMode = "HTML"
)

// Style is a span formatting kind.
type Style string

const (
	Bold          Style = "bold"
	Italic        Style = "italic"
	Underline     Style = "underline"
	Strikethrough Style = "strikethrough"
	Link          Style = "link"
	Mention       Style = "mention"
	InlineCode    Style = "inline_code"
	Pre           Style = "pre"
	OrderedList   Style = "ordered_list"
	UnorderedList Style = "unordered_list"
	Quote         Style = "quote"
)

var knownStyles = map[Style]struct{}{
	Bold: {}, Italic: {}, Underline: {}, Strikethrough: {}, Link: {}, Mention: {},
	InlineCode: {}, Pre: {}, OrderedList: {}, UnorderedList: {}, Quote: {},
}

// Valid reports whether s is a style the server understands.
func (s Style) Valid() bool {
	_, ok := knownStyles[s]
	return ok
}

// Span is a formatted range of text. Args carries style specific keys such as "url" or "code".
type Span struct {
	Offset int
	Length int
	Args   map[string]any
}

func (s Span) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Args)+2)
	for k, v := range s.Args {
		m[k] = v
	}
	m["offset"] = s.Offset
	m["length"] = s.Length
	return json.Marshal(m)
}

func (s *Span) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*s = Span{}
	for k, raw := range m {
		switch k {
		case "offset":
			if err := json.Unmarshal(raw, &s.Offset); err != nil {
				return fmt.Errorf("span offset: %w", err)
			}
		case "length":
			if err := json.Unmarshal(raw, &s.Length); err != nil {
				return fmt.Errorf("span length: %w", err)
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			if s.Args == nil {
				s.Args = make(map[string]any)
			}
			s.Args[k] = v
		}
	}
	return nil
}

// Format maps styles to their spans.
type Format map[Style][]Span

// Add appends a span for style. Unknown styles are rejected.
func (f Format) Add(style Style, offset, length int, args map[string]any) error {
	if !style.Valid() {
		return fmt.Errorf("format: unknown style %q", style)
	}
	if offset < 0 || length <= 0 {
		return fmt.Errorf("format: invalid range offset=%d length=%d", offset, length)
	}
	f[style] = append(f[style], Span{Offset: offset, Length: length, Args: args})
	return nil
}

// Styles lists the styles present in f in sorted order.
func (f Format) Styles() []Style {
	out := make([]Style, 0, len(f))
	for s := range f {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 backslash-escapes every MarkdownV2 special character.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(mdV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Escape prepares plain text for mode.
func Escape(text string, mode ParseMode) (string, error) {
	switch mode {
	case MarkdownV2:
		return EscapeMarkdownV2(text), nil
	case HTML:
		return html.EscapeString(text), nil
	case "":
		return text, nil
	}
	return "", fmt.Errorf("format: unsupported parse mode %q", mode)
}
