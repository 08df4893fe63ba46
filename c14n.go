//go:build libxml2

package webpay

import (
	"github.com/beevik/etree"
	"github.com/lestrrat-go/libxml2/clib"
	"github.com/lestrrat-go/libxml2/parser"
)

// With the libxml2 build tag, exclusive canonicalization is delegated to
// libxml2's xmlC14NDocDumpMemory instead of goxmldsig.
func init() {
	CanonicalizationAlgorithms[AlgorithmExcC14N] = LibXML2ExclusiveCanonicalization{}
}

// xmlC14NMode value for exclusive canonicalization 1.0.
const c14nModeExclusive10 = 1

// LibXML2ExclusiveCanonicalization implements v1.0 exclusive
// canonicalization through libxml2.
//
// It is known that callers cannot pass a namespace-prefix list to libxml2
// through this binding, so any InclusiveNamespaces PrefixList is ignored.
type LibXML2ExclusiveCanonicalization struct {
	WithComments bool
}

// ProcessElement serializes el and canonicalizes it with libxml2.
func (c LibXML2ExclusiveCanonicalization) ProcessElement(el *etree.Element, transformXML string) (string, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	input, err := doc.WriteToString()
	if err != nil {
		return "", err
	}
	return libxml2Canonicalize(input, c14nModeExclusive10, c.WithComments)
}

func libxml2Canonicalize(inputXML string, mode int, withComments bool) (string, error) {
	p := parser.New()
	doc, err := p.ParseString(inputXML)
	if err != nil {
		return "", err
	}
	defer doc.Free()

	return clib.XMLC14NDocDumpMemory(doc, mode, withComments)
}
