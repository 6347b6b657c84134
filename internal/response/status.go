// Package response parses Gemini response headers and decides what kind of
// body follows them.
package response

import (
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

// MaxMetaLength is the protocol limit on the meta string.
const MaxMetaLength = 1024

// GeminiMIME is the media type of navigable documents.
const GeminiMIME = "text/gemini"

var ErrMalformedHeader = errors.New("malformed response header")

// Class is the first digit of a status code.
type Class int

const (
	ClassInput                     Class = 1
	ClassSuccess                   Class = 2
	ClassRedirect                  Class = 3
	ClassTemporaryFailure          Class = 4
	ClassPermanentFailure          Class = 5
	ClassClientCertificateRequired Class = 6
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassSuccess:
		return "success"
	case ClassRedirect:
		return "redirect"
	case ClassTemporaryFailure:
		return "temporary failure"
	case ClassPermanentFailure:
		return "permanent failure"
	case ClassClientCertificateRequired:
		return "client certificate required"
	default:
		return "unknown"
	}
}

// Named status codes.
const (
	CodeInput                    = 10
	CodeSensitiveInput           = 11
	CodeSuccess                  = 20
	CodeRedirectTemporary        = 30
	CodeRedirectPermanent        = 31
	CodeTemporaryFailure         = 40
	CodeServerUnavailable        = 41
	CodeCGIError                 = 42
	CodeProxyError               = 43
	CodeSlowDown                 = 44
	CodePermanentFailure         = 50
	CodeNotFound                 = 51
	CodeGone                     = 52
	CodeProxyRequestRefused      = 53
	CodeBadRequest               = 59
	CodeClientCertificateNeeded  = 60
	CodeCertificateNotAuthorised = 61
	CodeCertificateNotValid      = 62
)

var codeNames = map[int]string{
	CodeInput:                    "input",
	CodeSensitiveInput:           "sensitive input",
	CodeSuccess:                  "success",
	CodeRedirectTemporary:        "temporary redirect",
	CodeRedirectPermanent:        "permanent redirect",
	CodeTemporaryFailure:         "temporary failure",
	CodeServerUnavailable:        "server unavailable",
	CodeCGIError:                 "CGI error",
	CodeProxyError:               "proxy error",
	CodeSlowDown:                 "slow down",
	CodePermanentFailure:         "permanent failure",
	CodeNotFound:                 "not found",
	CodeGone:                     "gone",
	CodeProxyRequestRefused:      "proxy request refused",
	CodeBadRequest:               "bad request",
	CodeClientCertificateNeeded:  "client certificate required",
	CodeCertificateNotAuthorised: "certificate not authorised",
	CodeCertificateNotValid:      "certificate not valid",
}

// Status is a parsed response header line.
type Status struct {
	Code int    `json:"code"`
	Meta string `json:"meta"`
}

// Class returns the status class.
func (s Status) Class() Class { return Class(s.Code / 10) }

// Name returns a human-readable name for the code, falling back to the class.
func (s Status) Name() string {
	if n, ok := codeNames[s.Code]; ok {
		return n
	}
	return s.Class().String()
}

// Sensitive reports whether an input prompt asks for a secret.
func (s Status) Sensitive() bool { return s.Code == CodeSensitiveInput }

// Permanent reports whether a redirect is permanent.
func (s Status) Permanent() bool { return s.Code == CodeRedirectPermanent }

func (s Status) String() string {
	if s.Meta == "" {
		return fmt.Sprintf("%d %s", s.Code, s.Name())
	}
	return fmt.Sprintf("%d %s: %s", s.Code, s.Name(), s.Meta)
}

// ParseStatus parses "<2 digits>[ <meta>]". The header must not contain the
// trailing CRLF.
func ParseStatus(header string) (Status, error) {
	if len(header) < 2 {
		return Status{}, fmt.Errorf("%w: %q is too short", ErrMalformedHeader, header)
	}
	if header[0] < '1' || header[0] > '6' || header[1] < '0' || header[1] > '9' {
		return Status{}, fmt.Errorf("%w: bad status code in %q", ErrMalformedHeader, header)
	}
	code, _ := strconv.Atoi(header[:2])

	var meta string
	if rest := header[2:]; rest != "" {
		if rest[0] != ' ' {
			return Status{}, fmt.Errorf("%w: no space after status code in %q", ErrMalformedHeader, header)
		}
		meta = strings.TrimSpace(rest[1:])
	}
	if len(meta) > MaxMetaLength {
		return Status{}, fmt.Errorf("%w: meta is %d bytes", ErrMalformedHeader, len(meta))
	}
	if strings.ContainsAny(meta, "\r\n") {
		return Status{}, fmt.Errorf("%w: meta contains a line break", ErrMalformedHeader)
	}
	return Status{Code: code, Meta: meta}, nil
}

// StatusError is returned for failure statuses (4x, 5x and 6x).
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "server returned " + e.Status.String()
}

// Failure reports whether s is a failure status and returns it as an error.
func Failure(s Status) error {
	switch s.Class() {
	case ClassTemporaryFailure, ClassPermanentFailure, ClassClientCertificateRequired:
		return &StatusError{Status: s}
	default:
		return nil
	}
}

// MediaType returns the lower-cased media type and parameters of a success
// meta. An empty meta means text/gemini with UTF-8.
func MediaType(s Status) (string, map[string]string) {
	if s.Meta == "" {
		return GeminiMIME, map[string]string{"charset": "utf-8"}
	}
	mt, params, err := mime.ParseMediaType(s.Meta)
	if err != nil {
		// Fall back to the bare type so sloppy servers still work.
		mt = strings.ToLower(strings.TrimSpace(strings.SplitN(s.Meta, ";", 2)[0]))
		return mt, map[string]string{}
	}
	return mt, params
}
