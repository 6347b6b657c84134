// Package location resolves and normalises Gemini resource references.
//
// A Location is always absolute, uses the gemini scheme, carries no dot
// segments and no fragment. Once constructed it is never modified.
package location

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	// Scheme is the only scheme the transport speaks.
	Scheme = "gemini"
	// DefaultPort is dropped from canonical locations.
	DefaultPort = "1965"
	// MaxLength is the longest request line (without CRLF) a server must accept.
	MaxLength = 1024
)

var (
	ErrMalformed         = errors.New("malformed reference")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// Location is a fully resolved Gemini URL.
type Location struct {
	u url.URL
}

// Parse parses an absolute gemini URL.
func Parse(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if u.Scheme == "" {
		return Location{}, fmt.Errorf("%w: %q is not absolute", ErrMalformed, raw)
	}
	return normalize(u)
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Location {
	loc, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// Resolve resolves reference against base following RFC 3986. An empty or
// fragment-only reference yields base itself. A zero base only accepts
// absolute references.
func Resolve(base Location, reference string) (Location, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" || strings.HasPrefix(ref, "#") {
		if base.IsZero() {
			return Location{}, fmt.Errorf("%w: empty reference without base", ErrMalformed)
		}
		return base, nil
	}

	r, err := url.Parse(ref)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if base.IsZero() {
		if r.Scheme == "" {
			return Location{}, fmt.Errorf("%w: relative reference %q without base", ErrMalformed, ref)
		}
		return normalize(r)
	}

	b := base.u
	return normalize(b.ResolveReference(r))
}

// FromInput turns text typed by a user into a Location. Bare host names
// ("example.org/page") get the gemini scheme prepended.
func FromInput(text string) (Location, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return Location{}, fmt.Errorf("%w: empty input", ErrMalformed)
	case strings.Contains(text, "://"):
		return Parse(text)
	case strings.HasPrefix(text, "//"):
		return Parse(Scheme + ":" + text)
	default:
		return Parse(Scheme + "://" + text)
	}
}

// WithInput returns loc with text percent-encoded as its query, which is how
// answers to an input prompt are sent back to the server.
func WithInput(loc Location, text string) (Location, error) {
	if loc.IsZero() {
		return Location{}, fmt.Errorf("%w: no location to submit input to", ErrMalformed)
	}
	u := loc.u
	u.RawQuery = strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	u.ForceQuery = false
	return normalize(&u)
}

func normalize(u *url.URL) (Location, error) {
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "":
		return Location{}, fmt.Errorf("%w: missing scheme", ErrMalformed)
	case scheme != Scheme:
		return Location{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	case u.Opaque != "":
		return Location{}, fmt.Errorf("%w: %s:%s has no authority", ErrMalformed, scheme, u.Opaque)
	case u.User != nil:
		return Location{}, fmt.Errorf("%w: userinfo is not allowed", ErrMalformed)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Location{}, fmt.Errorf("%w: missing host", ErrMalformed)
	}
	port := u.Port()
	if port == DefaultPort {
		port = ""
	}

	n := &url.URL{
		Scheme:   Scheme,
		Host:     joinHost(host, port),
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.RawQuery,
	}
	// Resolving an absolute URL against itself strips dot segments.
	n = n.ResolveReference(n)
	n.Fragment, n.RawFragment = "", ""
	if n.Path == "" {
		n.Path, n.RawPath = "/", ""
	}

	loc := Location{u: *n}
	if s := loc.String(); len(s) > MaxLength {
		return Location{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(s), MaxLength)
	}
	return loc, nil
}

func joinHost(host, port string) string {
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool { return l.u.Host == "" }

// String returns the canonical URL, which is also the request line payload.
func (l Location) String() string {
	if l.IsZero() {
		return ""
	}
	return l.u.String()
}

// Host returns the host name without port.
func (l Location) Host() string { return l.u.Hostname() }

// Authority returns the host, followed by ":port" unless the port is the
// default. Two capsules on one host but different ports have different
// authorities.
func (l Location) Authority() string { return l.u.Host }

// Port returns the effective port, DefaultPort when none was given.
func (l Location) Port() string {
	if p := l.u.Port(); p != "" {
		return p
	}
	return DefaultPort
}

// Address returns host:port suitable for dialing.
func (l Location) Address() string { return net.JoinHostPort(l.Host(), l.Port()) }

// Path returns the decoded path.
func (l Location) Path() string { return l.u.Path }

// Query returns the raw (still encoded) query.
func (l Location) Query() string { return l.u.RawQuery }

// Equal reports whether both locations have the same canonical form.
func (l Location) Equal(o Location) bool { return l.String() == o.String() }

// URL returns a copy of the underlying URL.
func (l Location) URL() *url.URL {
	u := l.u
	return &u
}

// MarshalText encodes the location as its canonical string.
func (l Location) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText parses an absolute gemini URL.
func (l *Location) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = Location{}
		return nil
	}
	loc, err := Parse(string(b))
	if err != nil {
		return err
	}
	*l = loc
	return nil
}
