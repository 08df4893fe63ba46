package webpay

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/moov-io/webpay/soap"
)

// Client exposes the Webpay operations. Every request is signed with the
// merchant identity and every response is verified against the pinned
// Webpay key before anything is returned.
//
// A Client is safe for concurrent use. The SOAP client of each endpoint is
// created on first use, once; concurrent first calls share the creation.
type Client struct {
	cfg      Config
	identity *Identity
	signer   *Signer
	verifier *Verifier

	logger     *zap.Logger
	metrics    MetricsRecorder
	httpClient *http.Client
	patch      SignedInfoPatch

	mu      sync.Mutex
	clients map[Endpoint]*soap.Client
	dialing singleflight.Group

	// OneClick groups the one-click card enrollment operations.
	OneClick *OneClick
	// OneClickMall groups the multi-merchant one-click operations.
	OneClickMall *OneClickMall
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Without it Config.Verbose selects a
// development logger, else nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics installs a metrics recorder. Defaults to NoopMetricsRecorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient replaces the http.Client used for WSDL fetches and calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithResponsePatch replaces the SignedInfo patch applied when verifying
// responses. See SOAPNamespacePatch.
func WithResponsePatch(patch SignedInfoPatch) Option {
	return func(c *Client) {
		if patch == nil {
			patch = NoPatch
		}
		c.patch = patch
	}
}

// NewClient validates cfg, loads the merchant identity and the Webpay key
// and returns a Client. No network I/O happens here.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		metrics: NewNoopMetricsRecorder(),
		patch:   SOAPNamespacePatch,
		clients: make(map[Endpoint]*soap.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
		if cfg.Verbose {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return nil, fmt.Errorf("webpay: building logger: %w", err)
			}
			c.logger = logger
		}
	}
	if c.metrics == nil {
		c.metrics = NewNoopMetricsRecorder()
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = soap.DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}

	privateKey, publicCert, webpayCert, err := cfg.credentials()
	if err != nil {
		return nil, err
	}
	if c.identity, err = LoadIdentity(privateKey, publicCert); err != nil {
		return nil, err
	}
	webpayKey, err := ParseTrustedKey(webpayCert)
	if err != nil {
		return nil, err
	}

	sigAlg, _ := ParseSignatureAlgorithm(cfg.SignatureAlgorithm)
	digestAlg, _ := ParseDigestAlgorithm(cfg.DigestAlgorithm)
	if c.signer, err = NewSigner(c.identity, WithSignatureAlgorithm(sigAlg), WithDigestAlgorithm(digestAlg)); err != nil {
		return nil, err
	}
	if c.verifier, err = NewVerifier(webpayKey, WithSignedInfoPatch(c.patch)); err != nil {
		return nil, err
	}

	c.OneClick = &OneClick{client: c}
	c.OneClickMall = &OneClickMall{client: c}

	c.logger.Debug("webpay client created",
		zap.String("commerce_code", cfg.CommerceCode),
		zap.Stringer("environment", cfg.Environment),
		zap.String("serial", c.identity.SerialNumber),
		zap.String("issuer", c.identity.IssuerName))
	return c, nil
}

// Identity is the merchant identity requests are signed with.
func (c *Client) Identity() *Identity { return c.identity }

// CommerceCode is the configured merchant code.
func (c *Client) CommerceCode() string { return c.cfg.CommerceCode }

// soapClient returns the cached client of ep, creating it at most once.
// A failed creation is not cached; the next call tries again.
func (c *Client) soapClient(ctx context.Context, ep Endpoint) (*soap.Client, error) {
	c.mu.Lock()
	sc, ok := c.clients[ep]
	c.mu.Unlock()
	if ok {
		return sc, nil
	}

	v, err, _ := c.dialing.Do(string(ep), func() (interface{}, error) {
		c.mu.Lock()
		sc, ok := c.clients[ep]
		c.mu.Unlock()
		if ok {
			return sc, nil
		}

		wsdlURL, err := c.cfg.WSDLURL(ep)
		if err != nil {
			return nil, err
		}
		opts := []soap.Option{
			soap.WithHTTPClient(c.httpClient),
			soap.WithLogger(c.logger.With(zap.String("endpoint", string(ep)))),
			soap.WithSigner(c.signer),
		}
		if c.cfg.SkipWSDL {
			opts = append(opts, soap.SkipWSDL(endpointNamespaces[ep]))
		}
		// coalesced callers share this dial, so one caller's cancellation
		// must not fail the others
		sc, err = soap.Dial(context.WithoutCancel(ctx), wsdlURL, opts...)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.clients[ep] = sc
		c.mu.Unlock()
		return sc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*soap.Client), nil
}

// call runs one operation: sign and send payload, verify the raw response,
// then decode its return element into out. out may be nil.
func (c *Client) call(ctx context.Context, ep Endpoint, operation string, payload, out interface{}) error {
	start := time.Now()
	logger := c.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("operation", operation))
	logger.Debug("calling webpay", zap.Any("params", payload))

	result, err := c.roundTrip(ctx, ep, operation, payload, out, logger)
	c.metrics.RecordOperation(operation, result, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, ep Endpoint, operation string, payload, out interface{}, logger *zap.Logger) (string, error) {
	sc, err := c.soapClient(ctx, ep)
	if err != nil {
		logger.Error("webpay client creation failed", zap.Error(err))
		return "transport_error", err
	}

	resp, err := sc.Call(ctx, operation, payload)
	if err != nil {
		var signErr *SigningError
		if errors.As(err, &signErr) {
			logger.Error("signing request failed", zap.Error(err))
			return "signing_error", err
		}
		logger.Error("webpay call failed", zap.Error(err))
		return "transport_error", err
	}

	body, err := c.verifier.VerifyBody(resp.Raw)
	if err != nil {
		logger.Warn("response doesn't have a valid signature", zap.Error(err))
		c.metrics.RecordSignatureFailure(operation)
		return "invalid_signature", &InvalidSignatureError{Operation: operation, Err: err}
	}

	// decode from the verified Body, never from resp.Return
	ret, err := soap.ReturnElement(body, operation)
	if err != nil {
		logger.Error("decoding response failed", zap.Error(err))
		return "error", fmt.Errorf("webpay: %s: decoding response: %w", operation, err)
	}
	if out != nil && ret != nil {
		if err := xml.Unmarshal(ret, out); err != nil {
			logger.Error("decoding response failed", zap.Error(err))
			return "error", fmt.Errorf("webpay: %s: decoding response: %w", operation, err)
		}
	}
	logger.Debug("webpay result", zap.Any("result", out))
	return "success", nil
}
