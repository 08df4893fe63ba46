package soap

import (
	"errors"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Definition is what the client needs from a WSDL document.
type Definition struct {
	TargetNamespace string
	// Operations declared by the port types, sorted.
	Operations []string
	// Address is the soap:address location of the first port, if any.
	Address string
}

// HasOperation reports whether op is declared. A definition that declares
// no operations at all accepts any.
func (d *Definition) HasOperation(op string) bool {
	if len(d.Operations) == 0 {
		return true
	}
	i := sort.SearchStrings(d.Operations, op)
	return i < len(d.Operations) && d.Operations[i] == op
}

// ParseWSDL reads the target namespace, the port type operations and the
// service address from a WSDL 1.1 document.
func ParseWSDL(data []byte) (*Definition, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil || root.Tag != "definitions" {
		return nil, errors.New("not a WSDL definitions document")
	}

	def := &Definition{TargetNamespace: root.SelectAttrValue("targetNamespace", "")}

	// CXF services keep the portType in an imported document, the binding
	// is always local.
	seen := map[string]bool{}
	for _, path := range []string{"./portType/operation", "./binding/operation"} {
		for _, op := range root.FindElements(path) {
			name := op.SelectAttrValue("name", "")
			if name != "" && !seen[name] {
				seen[name] = true
				def.Operations = append(def.Operations, name)
			}
		}
	}
	sort.Strings(def.Operations)

	for _, addr := range root.FindElements("./service/port/address") {
		if loc := strings.TrimSpace(addr.SelectAttrValue("location", "")); loc != "" {
			def.Address = loc
			break
		}
	}
	return def, nil
}

// EndpointFromWSDLURL strips the ?wsdl query from a WSDL URL.
func EndpointFromWSDLURL(wsdlURL string) string {
	for _, suffix := range []string{"?wsdl", "?WSDL"} {
		if strings.HasSuffix(wsdlURL, suffix) {
			return strings.TrimSuffix(wsdlURL, suffix)
		}
	}
	return wsdlURL
}
