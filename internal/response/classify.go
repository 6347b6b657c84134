package response

// BodyKind says what follows a response header.
type BodyKind int

const (
	// None means no body: input prompts, redirects and failures.
	None BodyKind = iota
	// NavigableDocument is a gemtext body handed to the document parser.
	NavigableDocument
	// Opaque is any other success body, surfaced as raw bytes.
	Opaque
)

func (k BodyKind) String() string {
	switch k {
	case NavigableDocument:
		return "document"
	case Opaque:
		return "opaque"
	default:
		return "none"
	}
}

// Classify picks the body kind from the status class and, for successes, the
// media type in meta.
func Classify(s Status) BodyKind {
	if s.Class() != ClassSuccess {
		return None
	}
	if mt, _ := MediaType(s); mt == GeminiMIME {
		return NavigableDocument
	}
	return Opaque
}
