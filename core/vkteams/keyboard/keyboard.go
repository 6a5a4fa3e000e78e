// Package keyboard builds inline keyboards in the Bot API JSON shape.
package keyboard

import "encoding/json"

// Style is a button color hint.
type Style string

const (
	StyleBase      Style = "base"
	StylePrimary   Style = "primary"
	StyleAttention Style = "attention"
)

// DefaultPerRow is used by New when perRow is not positive.
const DefaultPerRow = 2

const defaultCancelText = "❌ Cancel"

// Button is one inline keyboard button. Either CallbackData or URL is normally set.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callbackData,omitempty"`
	Style        Style  `json:"style,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Data returns a callback button with the base style.
func Data(text, data string) Button {
	return Button{Text: text, CallbackData: data, Style: StyleBase}
}

// Link returns a URL button.
func Link(text, url string) Button {
	return Button{Text: text, URL: url, Style: StyleBase}
}

// Cancel returns a cancel button carrying data. An empty label falls back to the default one.
func Cancel(data, label string) Button {
	if label == "" {
		label = defaultCancelText
	}
	return Button{Text: label, CallbackData: data, Style: StyleAttention}
}

// Markup is an inline keyboard. The zero value is not usable; call New.
type Markup struct {
	perRow int
	rows   [][]Button
}

// New returns an empty keyboard that Add splits into rows of perRow buttons.
func New(perRow int) *Markup {
	if perRow <= 0 {
		perRow = DefaultPerRow
	}
	return &Markup{perRow: perRow}
}

// Add appends buttons, starting a new row after every perRow buttons.
// A trailing partial row is kept.
func (m *Markup) Add(buttons ...Button) *Markup {
	for i := 0; i < len(buttons); i += m.perRow {
		end := min(i+m.perRow, len(buttons))
		m.rows = append(m.rows, append([]Button(nil), buttons[i:end]...))
	}
	return m
}

// Row appends buttons as one row regardless of perRow.
func (m *Markup) Row(buttons ...Button) *Markup {
	m.rows = append(m.rows, append([]Button(nil), buttons...))
	return m
}

// Rows returns a copy of the keyboard rows.
func (m *Markup) Rows() [][]Button {
	out := make([][]Button, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]Button(nil), r...)
	}
	return out
}

// Empty reports whether no buttons were added.
func (m *Markup) Empty() bool { return m == nil || len(m.rows) == 0 }

// MarshalJSON encodes the rows as a JSON array of arrays.
func (m *Markup) MarshalJSON() ([]byte, error) {
	if m == nil || m.rows == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.rows)
}

// String returns the JSON form used as the inlineKeyboardMarkup parameter.
func (m *Markup) String() string {
	b, err := m.MarshalJSON()
	if err != nil {
		return "[]"
	}
	return string(b)
}

// SessionEnd is the keyboard attached to the session expiry notice.
func SessionEnd() *Markup {
	return New(1).Row(Button{Text: "empty", CallbackData: "empty"})
}

// SingleCancel builds a keyboard with one cancel button.
func SingleCancel(data, label string) *Markup {
	return New(1).Row(Cancel(data, label))
}
