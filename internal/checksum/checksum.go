// Package checksum computes content digests used for certificate pinning and
// for detecting self-written files.
package checksum

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the SHA-256 fingerprint of the certificate's DER
// encoding in the colon-separated upper-case form most clients display.
func Fingerprint(cert *x509.Certificate) string {
	if cert == nil {
		return ""
	}
	sum := strings.ToUpper(Sum(cert.Raw))
	var b strings.Builder
	b.Grow(len(sum) + len(sum)/2)
	for i := 0; i < len(sum); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(sum[i : i+2])
	}
	return b.String()
}
