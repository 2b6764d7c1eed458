package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

func newTransport(proxyURL string, roots *x509.CertPool) (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	if roots != nil {
		tr.TLSClientConfig = &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12}
	}
	tr.MaxIdleConnsPerHost = 2
	tr.IdleConnTimeout = 90 * time.Second
	return tr, nil
}

// dialContext opens a connection to addr, through a SOCKS5 proxy when one
// is given.
func dialContext(ctx context.Context, network, addr, proxyURL string) (net.Conn, error) {
	var direct net.Dialer
	if proxyURL == "" {
		return direct.DialContext(ctx, network, addr)
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, fmt.Errorf("proxy scheme %q not supported for raw connections", u.Scheme)
	}
	d, err := proxy.FromURL(u, &direct)
	if err != nil {
		return nil, fmt.Errorf("proxy dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy dialer for %q cannot be cancelled", u.Redacted())
	}
	return cd.DialContext(ctx, network, addr)
}
