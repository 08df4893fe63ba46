package soap

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Fault is a SOAP 1.1 fault returned in place of an operation response.
type Fault struct {
	XMLName xml.Name `xml:"Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
	Actor   string   `xml:"faultactor"`
	Detail  struct {
		Inner string `xml:",innerxml"`
	} `xml:"detail"`
}

func (f *Fault) Error() string {
	code := strings.TrimSpace(f.Code)
	msg := strings.TrimSpace(f.String)
	if code == "" {
		return "soap fault: " + msg
	}
	return fmt.Sprintf("soap fault %s: %s", code, msg)
}

// TransportError is a network failure, an unexpected HTTP status, a
// malformed response or a SOAP fault. Err holds the cause; a *Fault when
// the service answered with one.
type TransportError struct {
	Endpoint   string
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	op := e.Operation
	if op == "" {
		op = "dial"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("soap: %s %s: status %d: %v", op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("soap: %s %s: %v", op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Fault returns the SOAP fault carried by the error, if any.
func (e *TransportError) Fault() (*Fault, bool) {
	f, ok := e.Err.(*Fault)
	return f, ok
}
