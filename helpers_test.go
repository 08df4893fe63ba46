package webpay

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/moov-io/webpay/internal/testcert"
)

const testEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tns="http://service.wswebpay.webpay.transbank.com/">` +
	`<soap:Header></soap:Header>` +
	`<soap:Body><tns:initTransaction><wsInitTransactionInput>` +
	`<wSTransactionType>TR_NORMAL_WS</wSTransactionType>` +
	`<buyOrder>ORDER-1</buyOrder>` +
	`<transactionDetails><amount>1000</amount><buyOrder>ORDER-1</buyOrder><commerceCode>597020000541</commerceCode></transactionDetails>` +
	`</wsInitTransactionInput></tns:initTransaction></soap:Body>` +
	`</soap:Envelope>`

// webpayResponse builds a response laid out the way the Webpay service
// signs its own: a ds-prefixed Signature in the wsse:Security header that
// references the Body through wsu:Id. DigestValue and SignatureValue are
// left empty for signResponse.
func webpayResponse(operation, returnXML string) string {
	return `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Header>` +
		`<wsse:Security xmlns:wsse="` + NamespaceWSSE + `" soap:mustUnderstand="1">` +
		`<ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#" Id="SIG-1">` +
		`<ds:SignedInfo>` +
		`<ds:CanonicalizationMethod Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"/>` +
		`<ds:SignatureMethod Algorithm="http://www.w3.org/2000/09/xmldsig#rsa-sha1"/>` +
		`<ds:Reference URI="#id-1">` +
		`<ds:Transforms><ds:Transform Algorithm="http://www.w3.org/2001/10/xml-exc-c14n#"/></ds:Transforms>` +
		`<ds:DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/>` +
		`<ds:DigestValue></ds:DigestValue>` +
		`</ds:Reference>` +
		`</ds:SignedInfo>` +
		`<ds:SignatureValue></ds:SignatureValue>` +
		`<ds:KeyInfo><wsse:SecurityTokenReference><ds:X509Data><ds:X509IssuerSerial>` +
		`<ds:X509IssuerName>CN=webpay</ds:X509IssuerName><ds:X509SerialNumber>1</ds:X509SerialNumber>` +
		`</ds:X509IssuerSerial></ds:X509Data></wsse:SecurityTokenReference></ds:KeyInfo>` +
		`</ds:Signature>` +
		`</wsse:Security>` +
		`</soap:Header>` +
		`<soap:Body xmlns:wsu="` + NamespaceWSU + `" wsu:Id="id-1">` +
		`<ns2:` + operation + `Response xmlns:ns2="http://service.wswebpay.webpay.transbank.com/">` +
		returnXML +
		`</ns2:` + operation + `Response>` +
		`</soap:Body>` +
		`</soap:Envelope>`
}

// signResponse fills in the digests and the signature of a webpayResponse
// document. The signature covers the canonical SignedInfo after patch.
func signResponse(key *rsa.PrivateKey, response string, patch SignedInfoPatch) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(response); err != nil {
		return nil, err
	}
	sd := &signatureData{xml: doc}
	if err := sd.parseEnvelopedSignature(); err != nil {
		return nil, err
	}
	if err := sd.parseSignedInfo(); err != nil {
		return nil, err
	}
	if err := sd.parseSigAlgorithm(); err != nil {
		return nil, err
	}
	if err := sd.parseCanonAlgorithm(); err != nil {
		return nil, err
	}

	for _, ref := range sd.signedInfo.SelectElements("Reference") {
		canonical, err := processReference(doc, ref, sd.canonURI)
		if err != nil {
			return nil, err
		}
		digest, err := calculateDigest(ref.SelectElement("DigestMethod").SelectAttrValue("Algorithm", ""), canonical)
		if err != nil {
			return nil, err
		}
		ref.SelectElement("DigestValue").SetText(digest)
	}

	canonical, err := canonicalSignedInfo(sd.signedInfo, sd.canonURI)
	if err != nil {
		return nil, err
	}
	hasher := sd.sigHash.New()
	hasher.Write(patch(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, sd.sigHash, hasher.Sum(nil))
	if err != nil {
		return nil, err
	}
	sd.signature.SelectElement("SignatureValue").SetText(base64.StdEncoding.EncodeToString(sig))
	return doc.WriteToBytes()
}

// timestampResponse is a webpayResponse whose only Reference covers a
// wsu:Timestamp in the security header, leaving the Body unsigned.
func timestampResponse(operation, returnXML string) string {
	raw := webpayResponse(operation, returnXML)
	raw = strings.Replace(raw, `URI="#id-1"`, `URI="#ts-1"`, 1)
	raw = strings.Replace(raw, ` wsu:Id="id-1"`, ``, 1)
	return strings.Replace(raw, `soap:mustUnderstand="1">`, `soap:mustUnderstand="1">`+
		`<wsu:Timestamp xmlns:wsu="`+NamespaceWSU+`" wsu:Id="ts-1"><wsu:Created>2026-10-19T12:00:00Z</wsu:Created></wsu:Timestamp>`, 1)
}

// wrapSignedBody moves the signed Body of a response under a Wrapper in
// soap:Header and appends an unsigned Body carrying returnXML.
func wrapSignedBody(signed []byte, operation, returnXML string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signed); err != nil {
		return nil, err
	}
	root := doc.Root()
	header := findChild(root, NamespaceSOAP, "Header")
	body := findChild(root, NamespaceSOAP, "Body")
	root.RemoveChild(body)
	header.CreateElement("Wrapper").AddChild(body)

	forged := etree.NewDocument()
	err := forged.ReadFromString(`<soap:Body xmlns:soap="` + NamespaceSOAP + `">` +
		`<ns2:` + operation + `Response xmlns:ns2="http://service.wswebpay.webpay.transbank.com/">` + returnXML +
		`</ns2:` + operation + `Response></soap:Body>`)
	if err != nil {
		return nil, err
	}
	root.AddChild(forged.Root().Copy())
	return doc.WriteToBytes()
}

func testIdentity(t *testing.T) (*Identity, *testcert.Pair) {
	t.Helper()
	pair, err := testcert.Default()
	if err != nil {
		t.Fatal(err)
	}
	id, err := LoadIdentity(pair.KeyPEM, pair.CertPEM)
	if err != nil {
		t.Fatal(err)
	}
	return id, pair
}
