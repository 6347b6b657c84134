package transport

import "crypto/x509"

// Decision is a trust verdict for a server certificate.
type Decision int

const (
	Reject Decision = iota
	AcceptOnce
	AcceptAlways
)

func (d Decision) String() string {
	switch d {
	case AcceptOnce:
		return "accept-once"
	case AcceptAlways:
		return "accept-always"
	default:
		return "reject"
	}
}

// Accepted reports whether the connection may proceed.
func (d Decision) Accepted() bool { return d == AcceptOnce || d == AcceptAlways }

// CertificateDecider decides whether to trust the leaf certificate presented
// by the server at authority (see location.Location.Authority). Gemini
// servers are mostly self-signed, so no chain verification happens before
// the decider is asked.
type CertificateDecider interface {
	Decide(authority string, cert *x509.Certificate) Decision
}

// DeciderFunc adapts a function to CertificateDecider.
type DeciderFunc func(authority string, cert *x509.Certificate) Decision

// Decide calls f.
func (f DeciderFunc) Decide(authority string, cert *x509.Certificate) Decision {
	return f(authority, cert)
}

// AcceptAll trusts every certificate for the current connection only.
var AcceptAll CertificateDecider = DeciderFunc(func(string, *x509.Certificate) Decision { return AcceptOnce })
