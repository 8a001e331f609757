package restapi

import "net/http"

// BrowserUserAgent is the desktop Chrome identity presented to every source.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// BrowserHeaders is the fixed, source-independent header set sent with each
// request. Accept-Encoding is left to the transport so gzip is decoded for us.
var BrowserHeaders = map[string]string{
	"User-Agent":                BrowserUserAgent,
	"Accept":                    "application/json, text/plain, */*",
	"Accept-Language":           "es-ES,es;q=0.9,en;q=0.8",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

func applyHeaders(req *http.Request) {
	for k, v := range BrowserHeaders {
		req.Header.Set(k, v)
	}
}
