package webpay

import (
	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// CanonicalizationAlgorithm defines an interface for processing an XML
// element into a standard format.
//
// If any child elements are in the Transform node, the entire transform node
// is passed to ProcessElement through the transformXML parameter as an XML
// string. This carries data such as the InclusiveNamespaces PrefixList of an
// exclusive canonicalization transform. Otherwise transformXML is empty.
type CanonicalizationAlgorithm interface {
	// ProcessElement transforms el with the implementing algorithm. el must
	// already carry the namespace declarations it depends on, and is never
	// modified.
	ProcessElement(el *etree.Element, transformXML string) (outputXML string, err error)
}

// ExclusiveCanonicalization implements http://www.w3.org/2001/10/xml-exc-c14n#.
// InclusiveNamespaces is the default prefix list, used when the transform
// carries none of its own.
type ExclusiveCanonicalization struct {
	InclusiveNamespaces string
}

// ProcessElement canonicalizes el with exclusive XML canonicalization,
// without comments.
func (c ExclusiveCanonicalization) ProcessElement(el *etree.Element, transformXML string) (string, error) {
	prefixList := c.InclusiveNamespaces
	if transformXML != "" {
		if pl, ok := inclusivePrefixList(transformXML); ok {
			prefixList = pl
		}
	}
	// the goxmldsig exclusive canonicalizer rewrites its input in place
	out, err := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList(prefixList).Canonicalize(el.Copy())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// inclusivePrefixList reads the PrefixList of an InclusiveNamespaces child
// of a serialized Transform or CanonicalizationMethod element.
func inclusivePrefixList(transformXML string) (string, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(transformXML); err != nil {
		return "", false
	}
	root := doc.Root()
	if root == nil {
		return "", false
	}
	incl := root.SelectElement("InclusiveNamespaces")
	if incl == nil {
		return "", false
	}
	return incl.SelectAttrValue("PrefixList", ""), true
}

type c14N10RecCanonicalizer struct {
	WithComments bool
}

func (c c14N10RecCanonicalizer) ProcessElement(el *etree.Element, transformXML string) (string, error) {
	var canon dsig.Canonicalizer
	if c.WithComments {
		canon = dsig.MakeC14N10WithCommentsCanonicalizer()
	} else {
		canon = dsig.MakeC14N10RecCanonicalizer()
	}

	out, err := canon.Canonicalize(el.Copy())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type c14N11Canonicalizer struct {
	WithComments bool
}

func (c c14N11Canonicalizer) ProcessElement(el *etree.Element, transformXML string) (string, error) {
	var canon dsig.Canonicalizer
	if c.WithComments {
		canon = dsig.MakeC14N11WithCommentsCanonicalizer()
	} else {
		canon = dsig.MakeC14N11Canonicalizer()
	}

	out, err := canon.Canonicalize(el.Copy())
	if err != nil {
		return "", err
	}
	return string(out), nil
}
