package webpay

import (
	"github.com/beevik/etree"
)

// EnvelopedSignature implements the CanonicalizationAlgorithm
// interface and is used for processing the
// http://www.w3.org/2000/09/xmldsig#enveloped-signature transform
// algorithm
type EnvelopedSignature struct{}

// ProcessElement removes the xmldsig Signature elements enclosed in el and
// returns the remaining subtree. A subtree without a Signature, such as a
// SOAP Body signed from the header, is returned unchanged.
func (e EnvelopedSignature) ProcessElement(el *etree.Element, transformXML string) (outputXML string, err error) {
	elCopy := el.Copy()
	for _, sig := range elCopy.FindElements(".//Signature") {
		if sig.NamespaceURI() != NamespaceDSig {
			continue
		}
		if parent := sig.Parent(); parent != nil {
			parent.RemoveChild(sig)
		}
	}

	doc := etree.NewDocument()
	doc.SetRoot(elCopy)
	return doc.WriteToString()
}
