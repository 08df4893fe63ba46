package webpay

import (
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// Identity is the merchant credential every outbound request is signed
// with. It is derived once from the key pair and never mutated.
type Identity struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate

	// CertificateBase64 is the DER certificate as a bare base64 blob, the
	// PEM body without markers or line breaks.
	CertificateBase64 string
	// IssuerName is formatted by IssuerName.String.
	IssuerName string
	// SerialNumber is the decimal serial as produced by DecodeSerial.
	SerialNumber string
}

// LoadIdentity parses a PEM private key (PKCS#1 or PKCS#8 RSA) and a PEM
// certificate and derives the values embedded in the WS-Security header.
func LoadIdentity(privateKeyPEM, certificatePEM []byte) (*Identity, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	cert, err := ParseCertificate(certificatePEM)
	if err != nil {
		return nil, err
	}
	if pub, ok := cert.PublicKey.(*rsa.PublicKey); !ok || !pub.Equal(&key.PublicKey) {
		return nil, &CertificateParseError{Field: "certificate", Err: errors.New("public key does not match the private key")}
	}

	issuer := IssuerNameFromCertificate(cert)
	if err := issuer.Validate(); err != nil {
		return nil, err
	}
	serial, err := DecodeSerial(opensslSerial(cert.SerialNumber))
	if err != nil {
		return nil, err
	}

	return &Identity{
		PrivateKey:        key,
		Certificate:       cert,
		CertificateBase64: base64.StdEncoding.EncodeToString(cert.Raw),
		IssuerName:        issuer.String(),
		SerialNumber:      serial,
	}, nil
}

// ParsePrivateKey decodes an RSA private key in PKCS#1 or PKCS#8 PEM form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &CertificateParseError{Field: "private key", Err: errors.New("no PEM block found")}
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "private key", Err: err}
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "private key", Err: err}
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, &CertificateParseError{Field: "private key", Err: fmt.Errorf("unsupported key type %T", key)}
		}
		return rsaKey, nil
	}
	return nil, &CertificateParseError{Field: "private key", Err: fmt.Errorf("unexpected PEM type %q", block.Type)}
}

// ParseCertificate decodes the first CERTIFICATE block of a PEM document.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, &CertificateParseError{Field: "certificate", Err: errors.New("no CERTIFICATE PEM block found")}
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "certificate", Err: err}
		}
		return cert, nil
	}
}

// ParseTrustedKey decodes the pinned Webpay verification key. It accepts a
// PEM certificate (as Transbank distributes it) or a PEM public key.
func ParseTrustedKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &CertificateParseError{Field: "webpay key", Err: errors.New("no PEM block found")}
	}

	var pub interface{}
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "webpay key", Err: err}
		}
		pub = cert.PublicKey
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "webpay key", Err: err}
		}
		pub = key
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, &CertificateParseError{Field: "webpay key", Err: err}
		}
		pub = key
	default:
		return nil, &CertificateParseError{Field: "webpay key", Err: fmt.Errorf("unexpected PEM type %q", block.Type)}
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, &CertificateParseError{Field: "webpay key", Err: fmt.Errorf("unsupported key type %T", pub)}
	}
	return rsaKey, nil
}

// IssuerName holds the components of the X509IssuerName Webpay expects.
type IssuerName struct {
	Country            string
	State              string
	Organization       string
	Locality           string
	CommonName         string
	OrganizationalUnit string
	Email              string
}

// IssuerNameFromCertificate takes country, state, organization and
// locality from the certificate issuer, and common name, organizational
// unit and email from its subject. Webpay merchant certificates are
// self-signed, where both sides agree.
func IssuerNameFromCertificate(cert *x509.Certificate) IssuerName {
	return IssuerName{
		Country:            first(cert.Issuer.Country),
		State:              first(cert.Issuer.Province),
		Organization:       first(cert.Issuer.Organization),
		Locality:           first(cert.Issuer.Locality),
		CommonName:         cert.Subject.CommonName,
		OrganizationalUnit: first(cert.Subject.OrganizationalUnit),
		Email:              emailAddress(cert.Subject),
	}
}

// String formats the name in the fixed order C,ST,O,L,CN,OU,emailAddress,
// whatever the order of the certificate's own DN.
func (n IssuerName) String() string {
	return "C=" + n.Country +
		",ST=" + n.State +
		",O=" + n.Organization +
		",L=" + n.Locality +
		",CN=" + n.CommonName +
		",OU=" + n.OrganizationalUnit +
		",emailAddress=" + n.Email
}

// Validate reports the first empty component as a CertificateParseError.
func (n IssuerName) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"issuer C", n.Country},
		{"issuer ST", n.State},
		{"issuer O", n.Organization},
		{"issuer L", n.Locality},
		{"subject CN", n.CommonName},
		{"subject OU", n.OrganizationalUnit},
		{"subject emailAddress", n.Email},
	}
	for _, f := range fields {
		if f.value == "" {
			return &CertificateParseError{Field: f.name}
		}
	}
	return nil
}

// DecodeSerial turns a certificate serial as printed by openssl into the
// decimal string Webpay matches against. A plain decimal serial (optionally
// followed by a " (0x..)" annotation) is returned as is. A colon separated
// hex serial has every byte converted to decimal and the results
// concatenated, so "1A:2B" becomes "2643".
func DecodeSerial(serial string) (string, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return "", &CertificateParseError{Field: "serial number"}
	}

	if !strings.Contains(serial, ":") {
		head := strings.Fields(serial)[0]
		if _, ok := new(big.Int).SetString(head, 10); ok && head[0] >= '0' && head[0] <= '9' {
			return head, nil
		}
	}

	var sb strings.Builder
	for _, token := range strings.Split(serial, ":") {
		b, err := strconv.ParseUint(strings.TrimSpace(token), 16, 64)
		if err != nil {
			return "", &CertificateParseError{Field: "serial number", Err: err}
		}
		sb.WriteString(strconv.FormatUint(b, 10))
	}
	return sb.String(), nil
}

// opensslSerial renders a serial number the way `openssl x509 -text`
// does: decimal when it fits in a signed 64-bit integer, lowercase colon
// separated hex bytes otherwise.
func opensslSerial(n *big.Int) string {
	if n == nil {
		return ""
	}
	if n.Sign() >= 0 && n.IsInt64() {
		return n.String()
	}
	b := n.Bytes()
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func emailAddress(name pkix.Name) string {
	for _, atv := range name.Names {
		if atv.Type.Equal(oidEmailAddress) {
			if s, ok := atv.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}
