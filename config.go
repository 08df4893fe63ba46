package webpay

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment selects the Webpay host set.
type Environment int

const (
	Integration Environment = iota
	Certification
	Production
)

func (e Environment) String() string {
	switch e {
	case Integration:
		return "integration"
	case Certification:
		return "certification"
	case Production:
		return "production"
	}
	return fmt.Sprintf("Environment(%d)", int(e))
}

// ParseEnvironment accepts the English and Spanish environment names.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "integration", "integracion", "test":
		return Integration, nil
	case "certification", "certificacion", "staging":
		return Certification, nil
	case "production", "produccion", "live":
		return Production, nil
	}
	return 0, fmt.Errorf("webpay: unknown environment %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	env, err := ParseEnvironment(value.Value)
	if err != nil {
		return err
	}
	*e = env
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (e Environment) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// Endpoint identifies one of the Webpay SOAP services.
type Endpoint string

const (
	EndpointNormal       Endpoint = "normal"
	EndpointNullify      Endpoint = "nullify"
	EndpointOneClick     Endpoint = "oneclick"
	EndpointOneClickMall Endpoint = "oneclickmall"
)

const (
	integrationHost = "https://webpay3gint.transbank.cl"
	productionHost  = "https://webpay3g.transbank.cl"
)

var endpointPaths = map[Endpoint]string{
	EndpointNormal:       "/WSWebpayTransaction/cxf/WSWebpayService?wsdl",
	EndpointNullify:      "/WSWebpayTransaction/cxf/WSCommerceIntegrationService?wsdl",
	EndpointOneClick:     "/webpayserver/wswebpay/OneClickPaymentService?wsdl",
	EndpointOneClickMall: "/WSWebpayTransaction/cxf/WSOneClickMulticodeService?wsdl",
}

// endpointNamespaces are used when the WSDL is not fetched.
var endpointNamespaces = map[Endpoint]string{
	EndpointNormal:       "http://service.wswebpay.webpay.transbank.com/",
	EndpointNullify:      "http://service.wswebpay.webpay.transbank.com/",
	EndpointOneClick:     "http://webservices.webpayserver.transbank.com/",
	EndpointOneClickMall: "http://service.wswebpay.webpay.transbank.com/",
}

// WSDLURL returns the WSDL location of an endpoint in this environment.
func (e Environment) WSDLURL(ep Endpoint) (string, error) {
	path, ok := endpointPaths[ep]
	if !ok {
		return "", fmt.Errorf("webpay: invalid endpoint %q, must be normal, nullify, oneclick or oneclickmall", ep)
	}
	switch e {
	case Integration, Certification:
		return integrationHost + path, nil
	case Production:
		return productionHost + path, nil
	}
	return "", fmt.Errorf("webpay: invalid environment %v", e)
}

// Default fee parameters, in percent and as an IVA multiplier.
const (
	DefaultCreditFeePercent = 2.95
	DefaultDebitFeePercent  = 1.49
	DefaultIVAFactor        = 0.19
)

// Config describes a merchant and how to reach Webpay. PEM material can be
// given inline or as a file path; inline wins.
type Config struct {
	CommerceCode string      `yaml:"commerce_code"`
	Environment  Environment `yaml:"environment"`

	PublicCert     string `yaml:"public_cert"`
	PublicCertFile string `yaml:"public_cert_file"`
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyFile string `yaml:"private_key_file"`
	WebpayCert     string `yaml:"webpay_cert"`
	WebpayCertFile string `yaml:"webpay_cert_file"`

	SignatureAlgorithm string `yaml:"signature_algorithm"`
	DigestAlgorithm    string `yaml:"digest_algorithm"`

	CreditFeePercent float64 `yaml:"credit_fee_percent"`
	DebitFeePercent  float64 `yaml:"debit_fee_percent"`
	IVAFactor        float64 `yaml:"iva_factor"`

	Timeout  time.Duration `yaml:"timeout"`
	SkipWSDL bool          `yaml:"skip_wsdl"`
	Verbose  bool          `yaml:"verbose"`

	// Endpoints overrides the WSDL URL of individual endpoints, keyed by
	// normal, nullify, oneclick or oneclickmall.
	Endpoints map[Endpoint]string `yaml:"endpoints"`
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("webpay: reading config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("webpay: parsing config %s: %w", path, err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// SetDefaults fills the fee parameters left at zero.
func (c *Config) SetDefaults() {
	if c.CreditFeePercent == 0 {
		c.CreditFeePercent = DefaultCreditFeePercent
	}
	if c.DebitFeePercent == 0 {
		c.DebitFeePercent = DefaultDebitFeePercent
	}
	if c.IVAFactor == 0 {
		c.IVAFactor = DefaultIVAFactor
	}
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CommerceCode) == "" {
		return errors.New("webpay: commerce_code is required")
	}
	if c.PublicCert == "" && c.PublicCertFile == "" {
		return errors.New("webpay: public_cert or public_cert_file is required")
	}
	if c.PrivateKey == "" && c.PrivateKeyFile == "" {
		return errors.New("webpay: private_key or private_key_file is required")
	}
	if c.WebpayCert == "" && c.WebpayCertFile == "" {
		return errors.New("webpay: webpay_cert or webpay_cert_file is required")
	}
	if _, err := ParseSignatureAlgorithm(c.SignatureAlgorithm); err != nil {
		return err
	}
	if _, err := ParseDigestAlgorithm(c.DigestAlgorithm); err != nil {
		return err
	}
	if c.CreditFeePercent < 0 || c.DebitFeePercent < 0 || c.IVAFactor < 0 {
		return errors.New("webpay: fee parameters must not be negative")
	}
	if c.Timeout < 0 {
		return errors.New("webpay: timeout must not be negative")
	}
	for ep := range c.Endpoints {
		if _, ok := endpointPaths[ep]; !ok {
			return fmt.Errorf("webpay: invalid endpoint override %q", ep)
		}
	}
	return nil
}

// WSDLURL resolves an endpoint, honouring overrides.
func (c *Config) WSDLURL(ep Endpoint) (string, error) {
	if u, ok := c.Endpoints[ep]; ok && u != "" {
		return u, nil
	}
	return c.Environment.WSDLURL(ep)
}

// credentials returns the merchant key, merchant certificate and Webpay
// certificate PEM bytes.
func (c *Config) credentials() (privateKey, publicCert, webpayCert []byte, err error) {
	if privateKey, err = pemSource(c.PrivateKey, c.PrivateKeyFile); err != nil {
		return nil, nil, nil, err
	}
	if publicCert, err = pemSource(c.PublicCert, c.PublicCertFile); err != nil {
		return nil, nil, nil, err
	}
	if webpayCert, err = pemSource(c.WebpayCert, c.WebpayCertFile); err != nil {
		return nil, nil, nil, err
	}
	return privateKey, publicCert, webpayCert, nil
}

func pemSource(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("webpay: reading %s: %w", path, err)
	}
	return data, nil
}
