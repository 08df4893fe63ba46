// Package webpay signs outbound Webpay SOAP requests with the WS-Security
// layout the service expects, verifies the signature of every response
// against a pinned service key, and exposes the Webpay transaction
// operations on top of those two steps.
package webpay

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// XML namespaces used by the envelopes exchanged with Webpay.
const (
	NamespaceDSig = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceSOAP = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceWSSE = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	NamespaceWSU  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
)

// Transform and canonicalization algorithm URIs.
const (
	AlgorithmEnvelopedSignature = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	AlgorithmExcC14N            = "http://www.w3.org/2001/10/xml-exc-c14n#"
)

// SignatureAlgorithm identifies the SignatureMethod of an XML signature.
type SignatureAlgorithm string

const (
	RSASHA1   SignatureAlgorithm = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	RSASHA256 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	RSASHA384 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	RSASHA512 SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
)

// DigestAlgorithm identifies the DigestMethod of a signature Reference.
type DigestAlgorithm string

const (
	SHA1   DigestAlgorithm = "http://www.w3.org/2000/09/xmldsig#sha1"
	SHA256 DigestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
	SHA384 DigestAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	SHA512 DigestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha512"
)

func init() {
	hashAlgorithms = map[string]crypto.Hash{
		string(SHA1):   crypto.SHA1,
		string(SHA256): crypto.SHA256,
		string(SHA384): crypto.SHA384,
		string(SHA512): crypto.SHA512,
	}

	signatureAlgorithms = map[string]crypto.Hash{
		string(RSASHA1):   crypto.SHA1,
		string(RSASHA256): crypto.SHA256,
		string(RSASHA384): crypto.SHA384,
		string(RSASHA512): crypto.SHA512,
	}
}

// CanonicalizationAlgorithms maps the CanonicalizationMethod or Transform
// Algorithm URIs to a type that implements CanonicalizationAlgorithm.
//
// Custom implementations can be added to the map.
var CanonicalizationAlgorithms = map[string]CanonicalizationAlgorithm{
	AlgorithmEnvelopedSignature:                         EnvelopedSignature{},
	AlgorithmExcC14N:                                    ExclusiveCanonicalization{},
	dsig.CanonicalXML11AlgorithmId.String():             c14N11Canonicalizer{},
	dsig.CanonicalXML11WithCommentsAlgorithmId.String(): c14N11Canonicalizer{WithComments: true},
	dsig.CanonicalXML10RecAlgorithmId.String():          c14N10RecCanonicalizer{},
	dsig.CanonicalXML10WithCommentsAlgorithmId.String(): c14N10RecCanonicalizer{WithComments: true},
}

var hashAlgorithms map[string]crypto.Hash
var signatureAlgorithms map[string]crypto.Hash

// ParseSignatureAlgorithm accepts either a short name (rsa-sha1, rsa-sha256,
// rsa-sha384, rsa-sha512) or a full algorithm URI.
func ParseSignatureAlgorithm(name string) (SignatureAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "rsa-sha1":
		return RSASHA1, nil
	case "rsa-sha256":
		return RSASHA256, nil
	case "rsa-sha384":
		return RSASHA384, nil
	case "rsa-sha512":
		return RSASHA512, nil
	}
	if _, ok := signatureAlgorithms[name]; ok {
		return SignatureAlgorithm(name), nil
	}
	return "", fmt.Errorf("webpay: unsupported signature algorithm %q", name)
}

// ParseDigestAlgorithm accepts either a short name (sha1, sha256, sha384,
// sha512) or a full algorithm URI.
func ParseDigestAlgorithm(name string) (DigestAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "sha384":
		return SHA384, nil
	case "sha512":
		return SHA512, nil
	}
	if _, ok := hashAlgorithms[name]; ok {
		return DigestAlgorithm(name), nil
	}
	return "", fmt.Errorf("webpay: unsupported digest algorithm %q", name)
}

// signatureData holds the pieces of a Signature element needed to check it.
type signatureData struct {
	xml        *etree.Document
	signature  *etree.Element
	signedInfo *etree.Element
	sigValue   string
	sigHash    crypto.Hash
	canonURI   string
}

// parseEnvelopedSignature locates the first Signature element in the
// XML-DSig namespace, whatever prefix it is bound to.
func (s *signatureData) parseEnvelopedSignature() error {
	for _, el := range s.xml.FindElements("//Signature") {
		if el.NamespaceURI() == NamespaceDSig {
			s.signature = el
			return nil
		}
	}
	return errors.New("webpay: unable to find a Signature element in the xmldsig namespace")
}

func (s *signatureData) parseSignedInfo() error {
	s.signedInfo = s.signature.SelectElement("SignedInfo")
	if s.signedInfo == nil {
		return errors.New("webpay: unable to find SignedInfo element")
	}
	return nil
}

func (s *signatureData) parseSigValue() error {
	s.sigValue = ""
	sigValueElement := s.signature.SelectElement("SignatureValue")
	if sigValueElement == nil {
		return errors.New("webpay: unable to find SignatureValue")
	}
	s.sigValue = strings.Join(strings.Fields(sigValueElement.Text()), "")
	return nil
}

func (s *signatureData) parseSigAlgorithm() error {
	sigMethod := s.signedInfo.SelectElement("SignatureMethod")
	if sigMethod == nil {
		return errors.New("webpay: unable to find SignatureMethod element")
	}
	uri := sigMethod.SelectAttrValue("Algorithm", "")
	if uri == "" {
		return errors.New("webpay: unable to find Algorithm in SignatureMethod element")
	}
	h, ok := signatureAlgorithms[uri]
	if !ok {
		return fmt.Errorf("webpay: unsupported Algorithm %s in SignatureMethod", uri)
	}
	s.sigHash = h
	return nil
}

func (s *signatureData) parseCanonAlgorithm() error {
	canonMethod := s.signedInfo.SelectElement("CanonicalizationMethod")
	if canonMethod == nil {
		return errors.New("webpay: unable to find CanonicalizationMethod element")
	}
	uri := canonMethod.SelectAttrValue("Algorithm", "")
	if uri == "" {
		return errors.New("webpay: unable to find Algorithm in CanonicalizationMethod element")
	}
	if _, ok := CanonicalizationAlgorithms[uri]; !ok {
		return fmt.Errorf("webpay: unsupported Algorithm %s in CanonicalizationMethod", uri)
	}
	s.canonURI = uri
	return nil
}

// getReferencedElement resolves a Reference URI. An empty URI selects the
// document root, "#x" selects the element whose Id, ID, id or wsu:Id is x.
func getReferencedElement(doc *etree.Document, uri string) (*etree.Element, error) {
	if uri == "" {
		if doc.Root() == nil {
			return nil, errors.New("webpay: empty document")
		}
		return doc.Root(), nil
	}
	if !strings.HasPrefix(uri, "#") {
		return nil, fmt.Errorf("webpay: unsupported reference URI %q", uri)
	}
	id := uri[1:]
	var found *etree.Element
	for _, el := range doc.FindElements("//*") {
		if elementID(el) == id {
			if found != nil {
				return nil, fmt.Errorf("webpay: reference %q is ambiguous", uri)
			}
			found = el
		}
	}
	if found == nil {
		return nil, fmt.Errorf("webpay: unable to find referenced element %q", uri)
	}
	return found, nil
}

func elementID(el *etree.Element) string {
	for i := range el.Attr {
		a := &el.Attr[i]
		switch a.Key {
		case "Id", "ID", "id":
		default:
			continue
		}
		if a.Space == "" || lookupNamespace(el, a.Space) == NamespaceWSU {
			return a.Value
		}
	}
	return ""
}

// lookupNamespace resolves prefix against the declarations on el and its
// ancestors.
func lookupNamespace(el *etree.Element, prefix string) string {
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return ""
}

// detach copies el together with every namespace declaration that is in
// scope at its position in the document, so canonicalization of the copy
// can resolve prefixes declared on ancestors.
func detach(el *etree.Element) *etree.Element {
	out := el.Copy()
	declared := make(map[string]bool)
	for _, a := range out.Attr {
		if isNamespaceDecl(a) {
			declared[namespacePrefix(a)] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !isNamespaceDecl(a) {
				continue
			}
			prefix := namespacePrefix(a)
			if declared[prefix] {
				continue
			}
			declared[prefix] = true
			out.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return out
}

func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")
}

func namespacePrefix(a etree.Attr) string {
	if a.Space == "" {
		return ""
	}
	return a.Key
}

// processReference applies the Reference transforms to the referenced
// element in order and returns the canonical octets the digest covers.
// When the last transform is not a canonicalization, canonURI is applied.
func processReference(doc *etree.Document, ref *etree.Element, canonURI string) ([]byte, error) {
	target, err := getReferencedElement(doc, ref.SelectAttrValue("URI", ""))
	if err != nil {
		return nil, err
	}
	current := detach(target)

	var output string
	canonical := false
	if transforms := ref.SelectElement("Transforms"); transforms != nil {
		for _, transform := range transforms.SelectElements("Transform") {
			if output != "" {
				next := etree.NewDocument()
				if err := next.ReadFromString(output); err != nil {
					return nil, err
				}
				current = next.Root()
			}
			output, canonical, err = processTransform(transform, current)
			if err != nil {
				return nil, err
			}
		}
	}
	if canonical {
		return []byte(output), nil
	}
	if output != "" {
		next := etree.NewDocument()
		if err := next.ReadFromString(output); err != nil {
			return nil, err
		}
		current = next.Root()
	}
	out, err := CanonicalizationAlgorithms[canonURI].ProcessElement(current, "")
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func processTransform(transform *etree.Element, el *etree.Element) (string, bool, error) {
	uri := transform.SelectAttrValue("Algorithm", "")
	if uri == "" {
		return "", false, errors.New("webpay: unable to find Algorithm in Transform")
	}
	algo, ok := CanonicalizationAlgorithms[uri]
	if !ok {
		return "", false, fmt.Errorf("webpay: unable to find matching transform "+
			"algorithm for %s in CanonicalizationAlgorithms", uri)
	}

	var transformContent string
	if len(transform.ChildElements()) > 0 {
		tDoc := etree.NewDocument()
		tDoc.SetRoot(transform.Copy())
		s, err := tDoc.WriteToString()
		if err != nil {
			return "", false, err
		}
		transformContent = s
	}

	out, err := algo.ProcessElement(el, transformContent)
	if err != nil {
		return "", false, err
	}
	return out, uri != AlgorithmEnvelopedSignature, nil
}

// calculateDigest hashes data with the digest method named by uri and
// returns it base64 encoded.
func calculateDigest(uri string, data []byte) (string, error) {
	h, ok := hashAlgorithms[uri]
	if !ok {
		return "", fmt.Errorf("webpay: unable to find matching hash algorithm for %s", uri)
	}
	hasher := h.New()
	hasher.Write(data)
	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// findChild returns the first child of parent whose local name is local
// and whose namespace is ns.
func findChild(parent *etree.Element, ns, local string) *etree.Element {
	for _, c := range parent.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == ns {
			return c
		}
	}
	return nil
}
