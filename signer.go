package webpay

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// defaultBodyID is assigned to a Body that carries no identifier of its own
// so the signature Reference can point at it.
const defaultBodyID = "_0"

// Signer adds the WS-Security header and enveloped signature Webpay
// expects to an outbound SOAP envelope. A Signer holds no per-call state
// and is safe for concurrent use.
type Signer struct {
	identity           *Identity
	signatureAlgorithm SignatureAlgorithm
	digestAlgorithm    DigestAlgorithm
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithSignatureAlgorithm sets the SignatureMethod. Defaults to RSASHA1.
func WithSignatureAlgorithm(alg SignatureAlgorithm) SignerOption {
	return func(s *Signer) {
		s.signatureAlgorithm = alg
	}
}

// WithDigestAlgorithm sets the Reference DigestMethod. Defaults to SHA1.
func WithDigestAlgorithm(alg DigestAlgorithm) SignerOption {
	return func(s *Signer) {
		s.digestAlgorithm = alg
	}
}

// NewSigner returns a *Signer for the identity provided
func NewSigner(identity *Identity, opts ...SignerOption) (*Signer, error) {
	if identity == nil || identity.PrivateKey == nil {
		return nil, errors.New("webpay: signer requires an identity with a private key")
	}
	s := &Signer{
		identity:           identity,
		signatureAlgorithm: RSASHA1,
		digestAlgorithm:    SHA1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := signatureAlgorithms[string(s.signatureAlgorithm)]; !ok {
		return nil, fmt.Errorf("webpay: unsupported signature algorithm %s", s.signatureAlgorithm)
	}
	if _, ok := hashAlgorithms[string(s.digestAlgorithm)]; !ok {
		return nil, fmt.Errorf("webpay: unsupported digest algorithm %s", s.digestAlgorithm)
	}
	return s, nil
}

// Sign injects a wsse:Security header at the end of soap:Header and signs
// soap:Body with the enveloped-signature and exc-c14n transforms. The
// Signature is placed last inside the wsse:Security element.
//
// The output is a pure function of the identity and the input envelope.
func (s *Signer) Sign(envelope []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(envelope); err != nil {
		return nil, &SigningError{Step: "parse envelope", Err: err}
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" || root.NamespaceURI() != NamespaceSOAP {
		return nil, &SigningError{Step: "locate envelope", Err: errors.New("root element is not a soap:Envelope")}
	}
	header := findChild(root, NamespaceSOAP, "Header")
	if header == nil {
		return nil, &SigningError{Step: "locate header", Err: errors.New("soap:Header not found")}
	}
	body := findChild(root, NamespaceSOAP, "Body")
	if body == nil {
		return nil, &SigningError{Step: "locate body", Err: errors.New("soap:Body not found")}
	}

	bodyID := elementID(body)
	if bodyID == "" {
		body.CreateAttr("Id", defaultBodyID)
		bodyID = defaultBodyID
	}

	security := header.CreateElement("wsse:Security")
	security.CreateAttr("xmlns:wsse", NamespaceWSSE)
	security.CreateAttr("wsse:mustUnderstand", "1")
	s.appendX509Data(security.CreateElement("KeyInfo"), false)

	signature, signedInfo := s.signatureTemplate("#" + bodyID)
	security.AddChild(signature)

	if err := s.setDigest(doc, signedInfo); err != nil {
		return nil, &SigningError{Step: "digest body", Err: err}
	}
	if err := s.setSignature(signature, signedInfo); err != nil {
		return nil, &SigningError{Step: "sign SignedInfo", Err: err}
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, &SigningError{Step: "serialize envelope", Err: err}
	}
	return out, nil
}

// signatureTemplate builds the unprefixed Signature element with an empty
// DigestValue and SignatureValue.
func (s *Signer) signatureTemplate(uri string) (signature, signedInfo *etree.Element) {
	signature = etree.NewElement("Signature")
	signature.CreateAttr("xmlns", NamespaceDSig)

	signedInfo = signature.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmExcC14N)
	signedInfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", string(s.signatureAlgorithm))

	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", uri)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmEnvelopedSignature)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmExcC14N)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", string(s.digestAlgorithm))
	ref.CreateElement("DigestValue")

	signature.CreateElement("SignatureValue")
	token := signature.CreateElement("KeyInfo").CreateElement("wsse:SecurityTokenReference")
	s.appendX509Data(token, true)
	return signature, signedInfo
}

// appendX509Data writes the issuer/serial and certificate block. The copy
// inside the signature KeyInfo also declares the ds prefix, as Webpay's own
// samples do.
func (s *Signer) appendX509Data(parent *etree.Element, declareDS bool) {
	x509Data := parent.CreateElement("X509Data")
	if declareDS {
		x509Data.CreateAttr("xmlns:ds", NamespaceDSig)
	}
	issuerSerial := x509Data.CreateElement("X509IssuerSerial")
	issuerSerial.CreateElement("X509IssuerName").SetText(s.identity.IssuerName)
	issuerSerial.CreateElement("X509SerialNumber").SetText(s.identity.SerialNumber)
	x509Data.CreateElement("X509Certificate").SetText(s.identity.CertificateBase64)
}

func (s *Signer) setDigest(doc *etree.Document, signedInfo *etree.Element) error {
	for _, ref := range signedInfo.SelectElements("Reference") {
		canonical, err := processReference(doc, ref, AlgorithmExcC14N)
		if err != nil {
			return err
		}
		digestMethod := ref.SelectElement("DigestMethod")
		digest, err := calculateDigest(digestMethod.SelectAttrValue("Algorithm", ""), canonical)
		if err != nil {
			return err
		}
		ref.SelectElement("DigestValue").SetText(digest)
	}
	return nil
}

func (s *Signer) setSignature(signature, signedInfo *etree.Element) error {
	canonical, err := canonicalSignedInfo(signedInfo, AlgorithmExcC14N)
	if err != nil {
		return err
	}

	h := signatureAlgorithms[string(s.signatureAlgorithm)]
	hasher := h.New()
	hasher.Write(canonical)

	// RSASSA-PKCS1-v1_5 is deterministic; the reader only feeds blinding.
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.identity.PrivateKey, h, hasher.Sum(nil))
	if err != nil {
		return err
	}
	signature.SelectElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(sig))
	return nil
}

// canonicalSignedInfo canonicalizes SignedInfo in the context of its
// document. Any InclusiveNamespaces on the CanonicalizationMethod is not
// applied.
func canonicalSignedInfo(signedInfo *etree.Element, canonURI string) ([]byte, error) {
	algo, ok := CanonicalizationAlgorithms[canonURI]
	if !ok {
		return nil, fmt.Errorf("webpay: unsupported Algorithm %s in CanonicalizationMethod", canonURI)
	}
	out, err := algo.ProcessElement(detach(signedInfo), "")
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
