// Package transport performs single Gemini request/response exchanges over TLS.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/starford/remi/internal/location"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxResponseSize = 16 << 20 // 16 MiB
)

var (
	ErrConnectFailed       = errors.New("connect failed")
	ErrHandshakeFailed     = errors.New("TLS handshake failed")
	ErrCertificateRejected = errors.New("certificate rejected")
	ErrTimeout             = errors.New("timed out")
	ErrConnectionReset     = errors.New("connection reset")
	ErrResponseTooLarge    = errors.New("response too large")
)

var crlf = []byte("\r\n")

// Response is the raw result of one exchange.
type Response struct {
	// Header is everything before the first CRLF.
	Header string
	Body   []byte
}

// Client dials a fresh connection for every request; the protocol has no
// connection reuse.
type Client struct {
	decider CertificateDecider
	timeout time.Duration
	maxSize int64
	dialer  *net.Dialer
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds dialing, the handshake, and every idle period while
// reading. Zero disables the idle timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithMaxResponseSize caps the number of bytes read from the server.
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *Client) { c.maxSize = n }
}

// WithLogger sets the logger used for exchange diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client that consults decider for every certificate.
// A nil decider accepts everything.
func NewClient(decider CertificateDecider, opts ...ClientOption) *Client {
	if decider == nil {
		decider = AcceptAll
	}
	c := &Client{
		decider: decider,
		timeout: DefaultTimeout,
		maxSize: DefaultMaxResponseSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &net.Dialer{Timeout: c.timeout}
	return c
}

// Fetch sends loc as a request line and reads the response until the server
// closes the connection. Cancelling ctx closes the connection at once and the
// returned error wraps ctx.Err().
func (c *Client) Fetch(ctx context.Context, loc location.Location) (*Response, error) {
	if loc.IsZero() {
		return nil, fmt.Errorf("transport: %w: empty location", location.ErrMalformed)
	}
	start := time.Now()
	addr := loc.Address()

	setupCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		setupCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.dialer.DialContext(setupCtx, "tcp", addr)
	if err != nil {
		return nil, c.wrap(ctx, ErrConnectFailed, err)
	}

	rejected := false
	conn := tls.Client(raw, &tls.Config{
		ServerName:         loc.Host(),
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // trust is decided by VerifyConnection
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				rejected = true
				return ErrCertificateRejected
			}
			d := c.decider.Decide(loc.Authority(), cs.PeerCertificates[0])
			c.logger.Debug("transport: certificate decision",
				slog.String("host", loc.Authority()),
				slog.String("decision", d.String()))
			if !d.Accepted() {
				rejected = true
				return ErrCertificateRejected
			}
			return nil
		},
	})
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.HandshakeContext(setupCtx); err != nil {
		if rejected {
			return nil, fmt.Errorf("transport: %s: %w", loc.Host(), ErrCertificateRejected)
		}
		return nil, c.wrap(ctx, ErrHandshakeFailed, err)
	}

	if c.timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if _, err := conn.Write([]byte(loc.String() + "\r\n")); err != nil {
		return nil, c.wrap(ctx, ErrConnectionReset, err)
	}

	data, err := io.ReadAll(io.LimitReader(&idleReader{conn: conn, timeout: c.timeout}, c.maxSize+1))
	if err != nil && !(len(data) > 0 && errors.Is(err, io.ErrUnexpectedEOF)) {
		// A peer that closes without close_notify after sending data has
		// still finished its response.
		return nil, c.wrap(ctx, ErrConnectionReset, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("transport: %w: more than %d bytes", ErrResponseTooLarge, c.maxSize)
	}

	resp := split(data)
	c.logger.Debug("transport: exchange complete",
		slog.String("url", loc.String()),
		slog.String("header", resp.Header),
		slog.Int("body_bytes", len(resp.Body)),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// wrap maps a low-level error onto the transport taxonomy. Cancellation of the
// caller's context wins over whatever error the closed socket produced.
func (c *Client) wrap(ctx context.Context, kind, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return fmt.Errorf("transport: %w: %w", ErrTimeout, ctxErr)
	case ctxErr != nil:
		return fmt.Errorf("transport: %w", ctxErr)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("transport: %w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("transport: %w: %v", kind, err)
}

func split(data []byte) *Response {
	i := bytes.Index(data, crlf)
	if i < 0 {
		return &Response{Header: string(data)}
	}
	return &Response{Header: string(data[:i]), Body: data[i+len(crlf):]}
}

// idleReader pushes the read deadline forward before every read so a slow
// but live server is not cut off, while a silent one is.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	}
	return r.conn.Read(p)
}
