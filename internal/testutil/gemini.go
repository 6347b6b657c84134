package testutil

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// Handler produces the complete raw response (header, CRLF and body) for a
// request line. done is closed when the test finishes so that stalling
// handlers can return.
type Handler func(request string, done <-chan struct{}) string

// GeminiServer is an in-process TLS server speaking the Gemini wire format.
type GeminiServer struct {
	Addr string
	Leaf *x509.Certificate

	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	requests []string
}

// NewGeminiServer starts a server on 127.0.0.1 with a fresh self-signed
// certificate and stops it when the test ends.
func NewGeminiServer(t *testing.T, h Handler) *GeminiServer {
	t.Helper()
	cert := SelfSignedCert(t, "localhost", time.Hour)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &GeminiServer{
		Addr:     ln.Addr().String(),
		Leaf:     cert.Leaf,
		listener: ln,
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve(h)

	t.Cleanup(func() {
		close(s.done)
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

// URL returns a gemini URL for path on this server.
func (s *GeminiServer) URL(path string) string {
	return "gemini://" + s.Addr + path
}

// Requests returns the request lines received so far.
func (s *GeminiServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *GeminiServer) serve(h Handler) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err != nil {
				return
			}
			req := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			s.mu.Lock()
			s.requests = append(s.requests, req)
			s.mu.Unlock()
			_, _ = conn.Write([]byte(h(req, s.done)))
		}()
	}
}

// SelfSignedCert generates an ECDSA certificate for host valid for ttl.
func SelfSignedCert(t *testing.T, host string, ttl time.Duration) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
}
