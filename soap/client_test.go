package soap

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testNamespace = "http://service.wswebpay.webpay.transbank.com/"

const testWSDL = `<?xml version="1.0" encoding="UTF-8"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/"
    xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
    targetNamespace="http://service.wswebpay.webpay.transbank.com/" name="WSWebpayServiceImplService">
  <wsdl:portType name="WSWebpayService">
    <wsdl:operation name="initTransaction"/>
    <wsdl:operation name="getTransactionResult"/>
  </wsdl:portType>
  <wsdl:binding name="WSWebpayServiceImplServiceSoapBinding" type="tns:WSWebpayService">
    <wsdl:operation name="acknowledgeTransaction"/>
    <wsdl:operation name="initTransaction"/>
  </wsdl:binding>
  <wsdl:service name="WSWebpayServiceImplService">
    <wsdl:port name="WSWebpayServiceImplPort" binding="tns:WSWebpayServiceImplServiceSoapBinding">
      <soap:address location="http://10.0.0.1:8080/WSWebpayTransaction/cxf/WSWebpayService"/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>`

const initTransactionResponse = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Header/>
  <soap:Body>
    <ns2:initTransactionResponse xmlns:ns2="http://service.wswebpay.webpay.transbank.com/">
      <return><token>e9d555262db0f989e49d724b4db0b0af</token><url>https://webpay3gint.transbank.cl/webpayserver/initTransaction</url></return>
    </ns2:initTransactionResponse>
  </soap:Body>
</soap:Envelope>`

const faultResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Server</faultcode>
      <faultstring>&lt;!-- Invalid amount(272) --&gt;</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

type initTransactionInput struct {
	Input struct {
		BuyOrder string `xml:"buyOrder"`
		Amount   int64  `xml:"transactionDetails>amount"`
	} `xml:"wsInitTransactionInput"`
}

type initTransactionOutput struct {
	Token string `xml:"token"`
	URL   string `xml:"url"`
}

type fakeService struct {
	t        *testing.T
	gets     int32
	posts    int32
	status   int
	response string

	mu       sync.Mutex
	lastBody []byte
	lastHdr  http.Header
}

func (f *fakeService) last() ([]byte, http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody, f.lastHdr
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		atomic.AddInt32(&f.gets, 1)
		if r.URL.RawQuery != "wsdl" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		io.WriteString(w, testWSDL)
	case http.MethodPost:
		atomic.AddInt32(&f.posts, 1)
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		f.mu.Lock()
		f.lastBody = body
		f.lastHdr = r.Header.Clone()
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		io.WriteString(w, f.response)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeService(t *testing.T, response string) (*fakeService, *httptest.Server) {
	f := &fakeService{t: t, response: response}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

type recordingSigner struct {
	seen []byte
	err  error
}

func (s *recordingSigner) Sign(envelope []byte) ([]byte, error) {
	s.seen = envelope
	if s.err != nil {
		return nil, s.err
	}
	return []byte(strings.Replace(string(envelope), "<soap:Header></soap:Header>",
		"<soap:Header><signed/></soap:Header>", 1)), nil
}

func TestParseWSDL(t *testing.T) {
	def, err := ParseWSDL([]byte(testWSDL))
	require.NoError(t, err)

	assert.Equal(t, testNamespace, def.TargetNamespace)
	assert.Equal(t, []string{"acknowledgeTransaction", "getTransactionResult", "initTransaction"}, def.Operations)
	assert.Equal(t, "http://10.0.0.1:8080/WSWebpayTransaction/cxf/WSWebpayService", def.Address)
	assert.True(t, def.HasOperation("acknowledgeTransaction"))
	assert.False(t, def.HasOperation("nullify"))

	_, err = ParseWSDL([]byte(`<html/>`))
	require.Error(t, err)

	empty := &Definition{}
	assert.True(t, empty.HasOperation("anything"))
}

func TestEndpointFromWSDLURL(t *testing.T) {
	cases := map[string]string{
		"https://webpay3gint.transbank.cl/WSWebpayTransaction/cxf/WSWebpayService?wsdl": "https://webpay3gint.transbank.cl/WSWebpayTransaction/cxf/WSWebpayService",
		"https://host/Service?WSDL": "https://host/Service",
		"https://host/Service":      "https://host/Service",
	}
	for in, want := range cases {
		assert.Equal(t, want, EndpointFromWSDLURL(in), in)
	}
}

func TestBuildEnvelope(t *testing.T) {
	var in initTransactionInput
	in.Input.BuyOrder = "ORDER-1"
	in.Input.Amount = 1000

	out, err := BuildEnvelope(testNamespace, "initTransaction", in)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	root := doc.Root()
	require.Equal(t, "Envelope", root.Tag)
	assert.Equal(t, NamespaceEnvelope, root.NamespaceURI())
	require.NotNil(t, childNS(root, NamespaceEnvelope, "Header"))

	body := childNS(root, NamespaceEnvelope, "Body")
	require.NotNil(t, body)
	op := body.SelectElement("initTransaction")
	require.NotNil(t, op)
	assert.Equal(t, testNamespace, op.NamespaceURI())

	input := op.SelectElement("wsInitTransactionInput")
	require.NotNil(t, input)
	assert.Equal(t, "", input.Space)
	assert.Equal(t, "ORDER-1", input.SelectElement("buyOrder").Text())
	assert.Equal(t, "1000", input.FindElement("./transactionDetails/amount").Text())

	out, err = BuildEnvelope(testNamespace, "ping", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<tns:ping></tns:ping>")
}

func TestDialAndCall(t *testing.T) {
	fake, srv := newFakeService(t, initTransactionResponse)
	signer := &recordingSigner{}

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl",
		WithSigner(signer), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/WSWebpayService", c.Endpoint())
	assert.Equal(t, testNamespace, c.Definition().TargetNamespace)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.gets))

	var in initTransactionInput
	in.Input.BuyOrder = "ORDER-1"
	in.Input.Amount = 1000
	resp, err := c.Call(context.Background(), "initTransaction", in)
	require.NoError(t, err)

	body, hdr := fake.last()
	assert.Equal(t, "text/xml; charset=utf-8", hdr.Get("Content-Type"))
	assert.Equal(t, `""`, hdr.Get("SOAPAction"))
	assert.Contains(t, string(body), "<signed/>")
	assert.Contains(t, string(signer.seen), "<buyOrder>ORDER-1</buyOrder>")
	assert.Equal(t, initTransactionResponse, string(resp.Raw))

	var out initTransactionOutput
	require.NoError(t, xml.Unmarshal(resp.Return, &out))
	assert.Equal(t, "e9d555262db0f989e49d724b4db0b0af", out.Token)
	assert.Equal(t, "https://webpay3gint.transbank.cl/webpayserver/initTransaction", out.URL)
}

func TestCallUnknownOperation(t *testing.T) {
	fake, srv := newFakeService(t, initTransactionResponse)

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl")
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "nullify", nil)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "nullify", terr.Operation)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fake.posts))
}

func TestCallFault(t *testing.T) {
	fake, srv := newFakeService(t, faultResponse)
	fake.status = http.StatusInternalServerError

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl")
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "initTransaction", nil)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)

	fault, ok := terr.Fault()
	require.True(t, ok)
	assert.Equal(t, "soap:Server", fault.Code)
	assert.Equal(t, "<!-- Invalid amount(272) -->", fault.String)
	assert.Contains(t, err.Error(), "Invalid amount(272)")
}

func TestCallHTTPError(t *testing.T) {
	fake, srv := newFakeService(t, "Service Unavailable")
	fake.status = http.StatusServiceUnavailable

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl")
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "initTransaction", nil)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	_, ok := terr.Fault()
	assert.False(t, ok)
}

func TestCallMissingResponseWrapper(t *testing.T) {
	_, srv := newFakeService(t, `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body/></soap:Envelope>`)

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl")
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "getTransactionResult", nil)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Contains(t, err.Error(), "getTransactionResultResponse")
}

func TestCallSignerError(t *testing.T) {
	fake, srv := newFakeService(t, initTransactionResponse)
	boom := errors.New("boom")

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl", WithSigner(&recordingSigner{err: boom}))
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "initTransaction", nil)
	require.ErrorIs(t, err, boom)

	var terr *TransportError
	assert.False(t, errors.As(err, &terr))
	assert.EqualValues(t, 0, atomic.LoadInt32(&fake.posts))
}

func TestDialErrors(t *testing.T) {
	_, srv := newFakeService(t, initTransactionResponse)

	_, err := Dial(context.Background(), srv.URL+"/WSWebpayService?nope")
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Contains(t, err.Error(), "dial")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Dial(ctx, srv.URL+"/WSWebpayService?wsdl")
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSkipWSDL(t *testing.T) {
	fake, srv := newFakeService(t, initTransactionResponse)

	c, err := Dial(context.Background(), srv.URL+"/WSWebpayService?wsdl", SkipWSDL(testNamespace))
	require.NoError(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fake.gets))

	resp, err := c.Call(context.Background(), "initTransaction", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Return)
	body, _ := fake.last()
	assert.Contains(t, string(body), `xmlns:tns="`+testNamespace+`"`)
}

func TestWithEndpoint(t *testing.T) {
	fake, srv := newFakeService(t, initTransactionResponse)

	c, err := Dial(context.Background(), "https://unused.invalid/Service?wsdl",
		SkipWSDL(testNamespace), WithEndpoint(srv.URL+"/other"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/other", c.Endpoint())

	_, err = c.Call(context.Background(), "initTransaction", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.posts))
}

func TestReturnElement(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<soap:Envelope xmlns:soap="`+NamespaceEnvelope+`"><soap:Body>`+
		`<ns2:getTransactionResultResponse xmlns:ns2="`+testNamespace+`"><return><buyOrder>ORDER-1</buyOrder></return></ns2:getTransactionResultResponse>`+
		`<ns2:acknowledgeTransactionResponse xmlns:ns2="`+testNamespace+`"/>`+
		`</soap:Body></soap:Envelope>`))
	body := doc.Root().SelectElement("Body")
	require.NotNil(t, body)

	ret, err := ReturnElement(body, "getTransactionResult")
	require.NoError(t, err)
	var out struct {
		BuyOrder string `xml:"buyOrder"`
	}
	require.NoError(t, xml.Unmarshal(ret, &out))
	assert.Equal(t, "ORDER-1", out.BuyOrder)

	ret, err = ReturnElement(body, "acknowledgeTransaction")
	require.NoError(t, err)
	assert.Nil(t, ret)

	_, err = ReturnElement(body, "nullify")
	assert.ErrorContains(t, err, "nullifyResponse")
}
