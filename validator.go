package webpay

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// SignedInfoPatch rewrites the canonical SignedInfo octets before the
// signature value is checked.
type SignedInfoPatch func(canonical []byte) []byte

var (
	dsigDeclaration = []byte(`xmlns:ds="` + NamespaceDSig + `"`)
	soapDeclaration = []byte(` xmlns:soap="` + NamespaceSOAP + `"`)
)

// SOAPNamespacePatch reproduces the octets Webpay actually signs: its
// SignedInfo is canonicalized with the soap prefix declared next to the ds
// prefix. The first xmlns:ds declaration gets an xmlns:soap declaration
// appended. Input without an xmlns:ds declaration, or whose start tag
// already declares soap, is returned unchanged.
func SOAPNamespacePatch(canonical []byte) []byte {
	i := bytes.Index(canonical, dsigDeclaration)
	if i < 0 {
		return canonical
	}
	end := i + len(dsigDeclaration)
	if tagEnd := bytes.IndexByte(canonical[end:], '>'); tagEnd >= 0 &&
		bytes.Contains(canonical[end:end+tagEnd], []byte(" xmlns:soap=")) {
		return canonical
	}

	out := make([]byte, 0, len(canonical)+len(soapDeclaration))
	out = append(out, canonical[:end]...)
	out = append(out, soapDeclaration...)
	out = append(out, canonical[end:]...)
	return out
}

// NoPatch checks the signature over the standard canonical form.
func NoPatch(canonical []byte) []byte {
	return canonical
}

// Verifier checks the signature of inbound responses against the pinned
// Webpay key. Key material embedded in the response is never consulted.
type Verifier struct {
	key   *rsa.PublicKey
	patch SignedInfoPatch
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithSignedInfoPatch replaces SOAPNamespacePatch. A nil patch means NoPatch.
func WithSignedInfoPatch(patch SignedInfoPatch) VerifierOption {
	return func(v *Verifier) {
		if patch == nil {
			patch = NoPatch
		}
		v.patch = patch
	}
}

// NewVerifier returns a *Verifier trusting only key.
func NewVerifier(key *rsa.PublicKey, opts ...VerifierOption) (*Verifier, error) {
	if key == nil {
		return nil, errors.New("webpay: verifier requires a public key")
	}
	v := &Verifier{key: key, patch: SOAPNamespacePatch}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Valid reports whether Verify succeeds.
func (v *Verifier) Valid(raw []byte) bool {
	return v.Verify(raw) == nil
}

// Verify locates the first Signature in the xmldsig namespace, checks
// every Reference digest and then the SignatureValue over the patched
// canonical SignedInfo. The soap:Body of the envelope must be one of the
// signed elements. Any structural problem is reported as an error.
func (v *Verifier) Verify(raw []byte) error {
	_, err := v.VerifyBody(raw)
	return err
}

// VerifyBody is Verify returning the signed soap:Body. Callers must read
// the response payload from this element only: it is the direct child of
// the Envelope and the very node a verified Reference resolved to.
func (v *Verifier) VerifyBody(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("webpay: malformed response: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("webpay: empty response")
	}

	sd := &signatureData{xml: doc}
	if err := sd.parseEnvelopedSignature(); err != nil {
		return nil, err
	}
	if err := sd.parseSignedInfo(); err != nil {
		return nil, err
	}
	if err := sd.parseSigValue(); err != nil {
		return nil, err
	}
	if err := sd.parseSigAlgorithm(); err != nil {
		return nil, err
	}
	if err := sd.parseCanonAlgorithm(); err != nil {
		return nil, err
	}

	signed, err := v.validateReferences(sd)
	if err != nil {
		return nil, err
	}
	if err := v.validateSignature(sd); err != nil {
		return nil, err
	}
	return signedBody(doc, signed)
}

func (v *Verifier) validateReferences(sd *signatureData) ([]*etree.Element, error) {
	references := sd.signedInfo.SelectElements("Reference")
	if len(references) == 0 {
		return nil, errors.New("webpay: SignedInfo contains no Reference")
	}
	signed := make([]*etree.Element, 0, len(references))
	for _, ref := range references {
		digestMethod := ref.SelectElement("DigestMethod")
		if digestMethod == nil {
			return nil, errors.New("webpay: unable to find DigestMethod")
		}
		digestValue := ref.SelectElement("DigestValue")
		if digestValue == nil {
			return nil, errors.New("webpay: unable to find DigestValue")
		}

		uri := ref.SelectAttrValue("URI", "")
		target, err := getReferencedElement(sd.xml, uri)
		if err != nil {
			return nil, err
		}
		canonical, err := processReference(sd.xml, ref, sd.canonURI)
		if err != nil {
			return nil, err
		}
		calculated, err := calculateDigest(digestMethod.SelectAttrValue("Algorithm", ""), canonical)
		if err != nil {
			return nil, err
		}
		expected := string(bytes.Join(bytes.Fields([]byte(digestValue.Text())), nil))
		if calculated != expected {
			return nil, fmt.Errorf("webpay: calculated digest does not match the expected digest for reference %q", uri)
		}
		signed = append(signed, target)
	}
	return signed, nil
}

// signedBody returns the only soap:Body child of the Envelope, provided
// the signature covers it or the whole document.
func signedBody(doc *etree.Document, signed []*etree.Element) (*etree.Element, error) {
	root := doc.Root()
	if root.Tag != "Envelope" || root.NamespaceURI() != NamespaceSOAP {
		return nil, errors.New("webpay: signed document is not a SOAP envelope")
	}
	var body *etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag != "Body" || child.NamespaceURI() != NamespaceSOAP {
			continue
		}
		if body != nil {
			return nil, errors.New("webpay: envelope has more than one soap:Body")
		}
		body = child
	}
	if body == nil {
		return nil, errors.New("webpay: envelope has no soap:Body")
	}
	for _, el := range signed {
		if el == body || el == root {
			return body, nil
		}
	}
	return nil, errors.New("webpay: soap:Body is not covered by the signature")
}

func (v *Verifier) validateSignature(sd *signatureData) error {
	canonical, err := canonicalSignedInfo(sd.signedInfo, sd.canonURI)
	if err != nil {
		return err
	}
	canonical = v.patch(canonical)

	sig, err := base64.StdEncoding.DecodeString(sd.sigValue)
	if err != nil {
		return fmt.Errorf("webpay: SignatureValue is not valid base64: %w", err)
	}

	hasher := sd.sigHash.New()
	hasher.Write(canonical)
	if err := rsa.VerifyPKCS1v15(v.key, sd.sigHash, hasher.Sum(nil), sig); err != nil {
		return fmt.Errorf("webpay: signature value does not verify: %w", err)
	}
	return nil
}
