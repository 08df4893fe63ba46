// Package soap is a minimal SOAP 1.1 document/literal client: it probes a
// WSDL once, then posts signed envelopes to the service endpoint.
package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// EnvelopeSigner transforms an outbound envelope before it is sent.
type EnvelopeSigner interface {
	Sign(envelope []byte) ([]byte, error)
}

// DefaultTimeout bounds WSDL fetches and calls when no http.Client is
// supplied.
const DefaultTimeout = 60 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 10 << 20

// Client posts operations to a single SOAP endpoint.
type Client struct {
	wsdlURL    string
	endpoint   string
	definition *Definition

	httpClient *http.Client
	logger     *zap.Logger
	signer     EnvelopeSigner

	skipWSDL  bool
	namespace string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSigner signs every outbound envelope.
func WithSigner(signer EnvelopeSigner) Option {
	return func(c *Client) {
		c.signer = signer
	}
}

// WithEndpoint overrides the endpoint derived from the WSDL URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// SkipWSDL avoids fetching the WSDL. The operation namespace must then be
// given, and any operation name is accepted.
func SkipWSDL(namespace string) Option {
	return func(c *Client) {
		c.skipWSDL = true
		c.namespace = namespace
	}
}

// Dial fetches and parses the WSDL at wsdlURL and returns a Client bound to
// its endpoint: the WithEndpoint override, or else wsdlURL with its ?wsdl
// query removed. The soap:address of the WSDL is not used, as Webpay
// advertises internal host names there.
func Dial(ctx context.Context, wsdlURL string, opts ...Option) (*Client, error) {
	c := &Client{
		wsdlURL:    wsdlURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.skipWSDL {
		c.definition = &Definition{TargetNamespace: c.namespace}
	} else {
		def, err := c.fetchWSDL(ctx)
		if err != nil {
			return nil, &TransportError{Endpoint: wsdlURL, Err: err}
		}
		c.definition = def
	}

	if c.endpoint == "" {
		c.endpoint = EndpointFromWSDLURL(wsdlURL)
	}
	if c.endpoint == "" {
		return nil, &TransportError{Endpoint: wsdlURL, Err: errors.New("no service endpoint")}
	}

	c.logger.Debug("soap client ready",
		zap.String("wsdl", wsdlURL),
		zap.String("endpoint", c.endpoint),
		zap.String("namespace", c.definition.TargetNamespace),
		zap.Int("operations", len(c.definition.Operations)))
	return c, nil
}

func (c *Client) fetchWSDL(ctx context.Context) (*Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.wsdlURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch WSDL: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	def, err := ParseWSDL(data)
	if err != nil {
		return nil, fmt.Errorf("parse WSDL: %w", err)
	}
	return def, nil
}

// Endpoint is the URL operations are posted to.
func (c *Client) Endpoint() string { return c.endpoint }

// Definition is the probed WSDL summary.
func (c *Client) Definition() *Definition { return c.definition }

// Call sends operation with payload and returns the decoded response.
// Signing errors are returned as is; everything that goes wrong on the
// wire, including SOAP faults, is a *TransportError.
func (c *Client) Call(ctx context.Context, operation string, payload interface{}) (*Response, error) {
	if !c.definition.HasOperation(operation) {
		return nil, &TransportError{
			Endpoint:  c.endpoint,
			Operation: operation,
			Err:       fmt.Errorf("operation %q not declared by the service", operation),
		}
	}

	envelope, err := BuildEnvelope(c.definition.TargetNamespace, operation, payload)
	if err != nil {
		return nil, err
	}
	if c.signer != nil {
		envelope, err = c.signer.Sign(envelope)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)

	c.logger.Debug("soap request",
		zap.String("operation", operation),
		zap.String("endpoint", c.endpoint),
		zap.Int("bytes", len(envelope)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("soap response",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)))

	out, err := parseResponse(raw, operation)
	if err != nil {
		terr := &TransportError{Endpoint: c.endpoint, Operation: operation, Err: err}
		if resp.StatusCode != http.StatusOK {
			terr.StatusCode = resp.StatusCode
		}
		return nil, terr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{
			Endpoint:   c.endpoint,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        errors.New("unexpected HTTP status"),
		}
	}
	return out, nil
}
