package session

import (
	"fmt"

	"github.com/starford/remi/internal/gemtext"
	"github.com/starford/remi/internal/history"
	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/response"
)

// Outcome says what a successful navigation produced.
type Outcome int

const (
	// OutcomeDocument is a gemtext page, committed to history.
	OutcomeDocument Outcome = iota
	// OutcomeOpaque is a non-gemtext body handed back as raw bytes.
	OutcomeOpaque
	// OutcomeInput is a prompt; answer it with Engine.SubmitInput.
	OutcomeInput
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDocument:
		return "document"
	case OutcomeOpaque:
		return "opaque"
	case OutcomeInput:
		return "input"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, v := range []Outcome{OutcomeDocument, OutcomeOpaque, OutcomeInput} {
		if v.String() == string(b) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("session: unknown outcome %q", b)
}

// Result is the outcome of a navigation that did not fail.
type Result struct {
	ID       string            `json:"id"`
	Outcome  Outcome           `json:"outcome"`
	Location location.Location `json:"location"`
	Status   response.Status   `json:"status"`
	// Redirects lists the locations passed through before Location.
	Redirects []location.Location `json:"redirects,omitempty"`

	// Set for OutcomeDocument.
	Document *gemtext.Document `json:"document,omitempty"`

	// Set for OutcomeOpaque.
	MediaType string `json:"media_type,omitempty"`
	Body      []byte `json:"-"`

	// Set for OutcomeInput.
	Prompt    string `json:"prompt,omitempty"`
	Sensitive bool   `json:"sensitive,omitempty"`
}

// Snapshot is a read-only view of the navigation state.
type Snapshot struct {
	Current      *history.Entry      `json:"current,omitempty"`
	CanGoBack    bool                `json:"can_go_back"`
	CanGoForward bool                `json:"can_go_forward"`
	Back         []location.Location `json:"back"`    // most recent first
	Forward      []location.Location `json:"forward"` // nearest first
}
