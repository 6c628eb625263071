package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/neptunelabs/fsi-client/internal/config"
)

// CreateTransferClient returns a client for uploads, downloads and cloud
// sinks. It shares the proxy setup of ConfigureHTTPClient but has no overall
// timeout; transfers are bounded by their context instead.
//
// HTTP/2 is enabled unless a proxy is active or DISABLE_HTTP2=true is set.
// FORCE_HTTP2=true keeps HTTP/2 through a proxy.
func CreateTransferClient(cfg *config.Config) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	client.Timeout = 0

	// NTLM wraps the transport; leave it as configured.
	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		return client, nil
	}

	tr.MaxIdleConns = 256
	tr.MaxIdleConnsPerHost = 32
	tr.MaxConnsPerHost = 32
	tr.DisableCompression = true // images are already compressed
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	return client, nil
}

func proxyActive(cfg *config.Config) bool {
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}
