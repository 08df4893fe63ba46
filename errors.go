package webpay

import (
	"errors"
	"fmt"

	"github.com/moov-io/webpay/soap"
)

// ErrMissingParams is returned, without any network I/O, when an operation
// is called with a nil request or an empty token.
var ErrMissingParams = errors.New("webpay: params missing")

// CertificateParseError reports a private key or certificate that could not
// be parsed, or a certificate lacking a field the WS-Security header needs.
type CertificateParseError struct {
	// Field names the missing or malformed item, e.g. "issuer.C" or "private key".
	Field string
	Err   error
}

func (e *CertificateParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("webpay: certificate parse error: missing %s", e.Field)
	}
	return fmt.Sprintf("webpay: certificate parse error: %s: %v", e.Field, e.Err)
}

func (e *CertificateParseError) Unwrap() error { return e.Err }

// SigningError reports an outbound envelope that could not be signed.
type SigningError struct {
	Step string
	Err  error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("webpay: signing failed at %s: %v", e.Step, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// InvalidSignatureError is returned by every operation whose response did
// not pass signature verification. The response payload is never returned
// alongside it.
type InvalidSignatureError struct {
	Operation string
	Err       error
}

func (e *InvalidSignatureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("webpay: %s: invalid signature response", e.Operation)
	}
	return fmt.Sprintf("webpay: %s: invalid signature response: %v", e.Operation, e.Err)
}

func (e *InvalidSignatureError) Unwrap() error { return e.Err }

// TransportError is a network failure or SOAP fault, surfaced unchanged.
type TransportError = soap.TransportError

// Fault is a decoded SOAP 1.1 fault.
type Fault = soap.Fault
