package soap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// NamespaceEnvelope is the SOAP 1.1 envelope namespace.
const NamespaceEnvelope = "http://schemas.xmlsoap.org/soap/envelope/"

// operationPrefix is bound to the service target namespace on the
// envelope.
const operationPrefix = "tns"

// BuildEnvelope wraps payload in <tns:operation> inside a SOAP 1.1
// envelope with an empty soap:Header. The exported fields of payload
// become unqualified children of the operation element. A nil payload
// yields an empty operation element.
func BuildEnvelope(namespace, operation string, payload interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<soap:Envelope xmlns:soap="` + NamespaceEnvelope + `"`)
	if namespace != "" {
		buf.WriteString(` xmlns:` + operationPrefix + `="`)
		if err := xml.EscapeText(&buf, []byte(namespace)); err != nil {
			return nil, err
		}
		buf.WriteString(`"`)
	}
	buf.WriteString(`><soap:Header></soap:Header><soap:Body>`)

	name := operation
	if namespace != "" {
		name = operationPrefix + ":" + operation
	}
	start := xml.StartElement{Name: xml.Name{Local: name}}

	enc := xml.NewEncoder(&buf)
	if payload == nil {
		if err := enc.EncodeToken(start); err != nil {
			return nil, err
		}
		if err := enc.EncodeToken(start.End()); err != nil {
			return nil, err
		}
	} else if err := enc.EncodeElement(payload, start); err != nil {
		return nil, fmt.Errorf("soap: encode %s payload: %w", operation, err)
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}

	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes(), nil
}

// Response is a decoded operation response.
type Response struct {
	// Raw is the response body exactly as received, for signature checks.
	Raw []byte
	// Return is the <return> element of the <operation>Response wrapper,
	// serialized with the namespace declarations in scope. It is nil when
	// the operation returns nothing. It is read from the first soap:Body
	// and carries no signature guarantee of its own.
	Return []byte
}

// parseResponse extracts the fault or the return element from raw.
func parseResponse(raw []byte, operation string) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" || root.NamespaceURI() != NamespaceEnvelope {
		return nil, errors.New("response is not a SOAP 1.1 envelope")
	}
	body := childNS(root, NamespaceEnvelope, "Body")
	if body == nil {
		return nil, errors.New("response has no soap:Body")
	}

	if faultEl := childNS(body, NamespaceEnvelope, "Fault"); faultEl != nil {
		b, err := serialize(faultEl)
		if err != nil {
			return nil, err
		}
		fault := &Fault{}
		if err := xml.Unmarshal(b, fault); err != nil {
			return nil, fmt.Errorf("malformed soap fault: %w", err)
		}
		return nil, fault
	}

	ret, err := ReturnElement(body, operation)
	if err != nil {
		return nil, err
	}
	return &Response{Raw: raw, Return: ret}, nil
}

// ReturnElement serializes the <return> element of the <operation>Response
// child of body. It returns nil when the operation returns nothing.
func ReturnElement(body *etree.Element, operation string) ([]byte, error) {
	wrapper := body.SelectElement(operation + "Response")
	if wrapper == nil {
		return nil, fmt.Errorf("response has no %sResponse element", operation)
	}
	ret := wrapper.SelectElement("return")
	if ret == nil {
		return nil, nil
	}
	return serialize(ret)
}

// serialize writes el as a standalone document, carrying the namespace
// declarations of its ancestors.
func serialize(el *etree.Element) ([]byte, error) {
	out := el.Copy()
	seen := map[string]bool{}
	for _, a := range out.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			seen[a.FullKey()] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if !(a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns")) || seen[a.FullKey()] {
				continue
			}
			seen[a.FullKey()] = true
			out.CreateAttr(a.FullKey(), a.Value)
		}
	}
	doc := etree.NewDocument()
	doc.SetRoot(out)
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", el.Tag, err)
	}
	return b, nil
}

func childNS(parent *etree.Element, ns, local string) *etree.Element {
	for _, c := range parent.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == ns {
			return c
		}
	}
	return nil
}
