package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moov-io/webpay/internal/testcert"
)

const unsignedEnvelope = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:tns="http://service.wswebpay.webpay.transbank.com/">` +
	`<soap:Header></soap:Header><soap:Body><tns:acknowledgeTransaction><tokenInput>t-1</tokenInput></tns:acknowledgeTransaction></soap:Body></soap:Envelope>`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePEMs(t *testing.T) (key, cert string) {
	t.Helper()
	pair, err := testcert.Default()
	require.NoError(t, err)
	dir := t.TempDir()
	key = filepath.Join(dir, "merchant.key")
	cert = filepath.Join(dir, "merchant.crt")
	require.NoError(t, os.WriteFile(key, pair.KeyPEM, 0o600))
	require.NoError(t, os.WriteFile(cert, pair.CertPEM, 0o600))
	return key, cert
}

func TestIdentityCommand(t *testing.T) {
	r := require.New(t)
	key, cert := writePEMs(t)

	out, err := run(t, "", "identity", "--key", key, "--cert", cert)
	r.NoError(err)
	r.Contains(out, "issuer: C=CL,ST=RM,O=Acme,L=Santiago,CN=acme.cl,OU=IT,emailAddress=a@acme.cl")
	r.Contains(out, "serial: 1234567890")
}

func TestSignAndVerifyCommands(t *testing.T) {
	r := require.New(t)
	key, cert := writePEMs(t)

	signed, err := run(t, unsignedEnvelope, "sign", "--key", key, "--cert", cert)
	r.NoError(err)
	r.Contains(signed, "<wsse:Security")
	r.Contains(signed, `URI="#_0"`)

	path := filepath.Join(t.TempDir(), "signed.xml")
	r.NoError(os.WriteFile(path, []byte(signed), 0o600))

	out, err := run(t, "", "verify", "--trusted-cert", cert, path)
	r.NoError(err)
	r.Contains(out, "signature valid")

	out, err = run(t, signed, "verify", "--trusted-cert", cert, "--no-patch")
	r.NoError(err)
	r.Contains(out, "signature valid")

	_, err = run(t, strings.Replace(signed, "<tokenInput>t-1<", "<tokenInput>t-2<", 1), "verify", "--trusted-cert", cert)
	r.Error(err)

	_, err = run(t, signed, "verify")
	r.ErrorContains(err, "--trusted-cert")
}

func TestSignCommandRejectsUnknownAlgorithm(t *testing.T) {
	key, cert := writePEMs(t)
	_, err := run(t, unsignedEnvelope, "sign", "--key", key, "--cert", cert, "--signature-algorithm", "dsa-sha1")
	require.Error(t, err)
}

func TestFeesCommand(t *testing.T) {
	r := require.New(t)

	out, err := run(t, "", "fees", "10000")
	r.NoError(err)
	r.Equal("subtotal: 295\niva: 56\ntotal: 351\n", out)

	out, err = run(t, "", "fees", "10000", "--payment-type", "VD", "--no-iva-below-180")
	r.NoError(err)
	r.Equal("subtotal: 149\niva: 0\ntotal: 149\n", out)

	_, err = run(t, "", "fees", "ten")
	r.Error(err)
}
