// Package trust decides which server certificates to accept using
// trust-on-first-use pinning backed by the host store.
package trust

import (
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/remi/internal/apperr"
	"github.com/starford/remi/internal/checksum"
	"github.com/starford/remi/internal/models"
	"github.com/starford/remi/internal/store"
	"github.com/starford/remi/internal/transport"
)

// Mode selects how unknown or changed certificates are handled.
type Mode string

const (
	// ModeTOFU pins the first certificate seen and rejects changes unless the
	// pinned one has expired.
	ModeTOFU Mode = "tofu"
	// ModeAccept accepts every certificate for the current connection only.
	ModeAccept Mode = "accept"
	// ModeReject accepts pinned certificates only.
	ModeReject Mode = "reject"
)

// ErrUnknownMode is returned by ParseMode.
var ErrUnknownMode = errors.New("unknown trust mode")

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTOFU, ModeAccept, ModeReject:
		return m, nil
	}
	return "", fmt.Errorf("trust: %w: %q", ErrUnknownMode, s)
}

// Manager implements transport.CertificateDecider.
type Manager struct {
	hosts  store.HostStore
	mode   Mode
	prompt transport.CertificateDecider
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	once map[string]string // host -> fingerprint accepted for this process
}

var _ transport.CertificateDecider = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithMode sets the trust mode (default ModeTOFU).
func WithMode(m Mode) Option {
	return func(t *Manager) { t.mode = m }
}

// WithPrompt delegates first-use and changed-certificate decisions in
// ModeTOFU to d, typically an interactive prompt.
func WithPrompt(d transport.CertificateDecider) Option {
	return func(t *Manager) { t.prompt = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Manager) { t.logger = l }
}

// NewManager creates a Manager over hosts.
func NewManager(hosts store.HostStore, opts ...Option) *Manager {
	m := &Manager{
		hosts:  hosts,
		mode:   ModeTOFU,
		logger: slog.Default(),
		now:    time.Now,
		once:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Decide returns the verdict for cert presented by host and records it. host
// is an authority: pins are per host and port.
func (m *Manager) Decide(host string, cert *x509.Certificate) transport.Decision {
	fp := checksum.Fingerprint(cert)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.once[host] == fp {
		return transport.AcceptOnce
	}

	known, err := m.hosts.LookupHost(host)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		m.logger.Error("trust: lookup failed", slog.String("host", host), slog.String("error", err.Error()))
		return transport.Reject
	}

	var d transport.Decision
	switch {
	case known != nil && known.Fingerprint == fp:
		return transport.AcceptAlways
	case m.mode == ModeAccept:
		d = transport.AcceptOnce
	case m.mode == ModeReject:
		d = transport.Reject
	case known == nil:
		d = m.ask(host, cert, transport.AcceptAlways)
	case known.Expired(m.now()):
		m.logger.Info("trust: replacing expired certificate", slog.String("host", host))
		d = transport.AcceptAlways
	default:
		m.logger.Warn("trust: certificate changed",
			slog.String("host", host),
			slog.String("pinned", known.Fingerprint),
			slog.String("presented", fp))
		d = m.ask(host, cert, transport.Reject)
	}

	switch d {
	case transport.AcceptAlways:
		pin := models.KnownHost{Host: host, Fingerprint: fp, NotAfter: cert.NotAfter}
		if known != nil {
			pin.FirstSeen = known.FirstSeen
		}
		if err := m.hosts.SaveHost(pin); err != nil {
			m.logger.Error("trust: save pin failed", slog.String("host", host), slog.String("error", err.Error()))
		}
		delete(m.once, host)
	case transport.AcceptOnce:
		m.once[host] = fp
	}
	return d
}

func (m *Manager) ask(host string, cert *x509.Certificate, fallback transport.Decision) transport.Decision {
	if m.prompt == nil {
		return fallback
	}
	return m.prompt.Decide(host, cert)
}

// Hosts lists pinned hosts.
func (m *Manager) Hosts() ([]models.KnownHost, error) {
	return m.hosts.ListHosts()
}

// Forget drops both the persistent pin and any session acceptance for host.
func (m *Manager) Forget(host string) error {
	m.mu.Lock()
	_, hadOnce := m.once[host]
	delete(m.once, host)
	m.mu.Unlock()

	err := m.hosts.DeleteHost(host)
	if hadOnce && errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}
