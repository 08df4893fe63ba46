package webpay

import (
	"bytes"
	"html/template"
	"strings"
)

// DefaultTransitionGIF is the background Transbank asks merchants to show
// while the cardholder is redirected.
const DefaultTransitionGIF = "https://webpay3g.transbank.cl/webpayserver/imagenes/background.gif"

var transitionTemplate = template.Must(template.New("transition").Parse(`<html><head><style>
html,body { margin: 0; padding: 0; height: 100%; width: 100%; background-image: url({{.GIF}}); }
form { display: none; }</style></head>
<body onload="document.getElementById('form').submit();">
<form action="{{.Action}}" method="post" id="form"><input name="token_ws" value="{{.Token}}"></form></body></html>`))

// TransitionPage renders the page that posts token_ws to redirectURL as
// soon as it loads. An empty gifURL selects DefaultTransitionGIF. gifURL
// may be an http(s) URL or an inline data:image/ URI; other schemes are
// replaced by the template escaper.
func TransitionPage(redirectURL, token, gifURL string) (string, error) {
	if gifURL == "" {
		gifURL = DefaultTransitionGIF
	}
	var gif interface{} = gifURL
	if strings.HasPrefix(gifURL, "data:image/") {
		gif = template.URL(gifURL)
	}
	var buf bytes.Buffer
	err := transitionTemplate.Execute(&buf, struct {
		GIF    interface{}
		Action string
		Token  string
	}{gif, redirectURL, token})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
