// Package testcert generates throwaway RSA key pairs and self-signed
// certificates for tests.
package testcert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"sync"
	"time"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// Pair is a private key with its certificate, in parsed and PEM form.
type Pair struct {
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate

	KeyPEM       []byte // PKCS#1
	KeyPKCS8PEM  []byte
	CertPEM      []byte
	PublicKeyPEM []byte
}

// Options shapes the generated certificate.
type Options struct {
	Serial  *big.Int
	Subject pkix.Name
	Email   string
}

// DefaultSerial fits in 64 bits, so openssl prints it in decimal.
var DefaultSerial = big.NewInt(1234567890)

// DefaultSubject carries every component a Webpay issuer name needs.
func DefaultSubject() pkix.Name {
	return pkix.Name{
		Country:            []string{"CL"},
		Province:           []string{"RM"},
		Organization:       []string{"Acme"},
		Locality:           []string{"Santiago"},
		CommonName:         "acme.cl",
		OrganizationalUnit: []string{"IT"},
	}
}

// DefaultEmail is the emailAddress of DefaultSubject.
const DefaultEmail = "a@acme.cl"

var (
	once     sync.Once
	shared   *Pair
	errOnce  error
	otherMu  sync.Mutex
	otherKey *Pair
)

// Default returns a shared pair built from DefaultSubject, DefaultEmail
// and DefaultSerial. Key generation is slow, so it runs once per binary.
func Default() (*Pair, error) {
	once.Do(func() {
		shared, errOnce = Generate(Options{})
	})
	return shared, errOnce
}

// Other returns a second shared pair, unrelated to Default, for tests that
// need a wrong key.
func Other() (*Pair, error) {
	otherMu.Lock()
	defer otherMu.Unlock()
	if otherKey != nil {
		return otherKey, nil
	}
	p, err := Generate(Options{})
	if err != nil {
		return nil, err
	}
	otherKey = p
	return p, nil
}

// Generate creates a 2048-bit RSA key and a self-signed certificate.
// Zero fields of opts fall back to the defaults.
func Generate(opts Options) (*Pair, error) {
	if opts.Serial == nil {
		opts.Serial = DefaultSerial
	}
	if opts.Subject.CommonName == "" && len(opts.Subject.Country) == 0 {
		opts.Subject = DefaultSubject()
		if opts.Email == "" {
			opts.Email = DefaultEmail
		}
	}
	if opts.Email != "" {
		opts.Subject.ExtraNames = append(opts.Subject.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidEmailAddress,
			Value: opts.Email,
		})
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          opts.Serial,
		Subject:               opts.Subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Pair{
		Key:          key,
		Certificate:  cert,
		KeyPEM:       pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		KeyPKCS8PEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
		CertPEM:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PublicKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}),
	}, nil
}
