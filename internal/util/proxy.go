// Package util holds HTTP helpers shared by outbound clients.
package util

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// NewProxyFunc returns a proxy selector for http.Transport. Explicit proxies
// take precedence over HTTP_PROXY, HTTPS_PROXY and NO_PROXY; with neither set
// the environment decides.
func NewProxyFunc(httpProxy, httpsProxy string) (func(*http.Request) (*url.URL, error), error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	plain, err := parseProxy(httpProxy)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}
	secure, err := parseProxy(httpsProxy)
	if err != nil {
		return nil, fmt.Errorf("https proxy: %w", err)
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && secure != nil {
			return secure, nil
		}
		if plain != nil {
			return plain, nil
		}
		return http.ProxyFromEnvironment(req)
	}, nil
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q", raw)
	}
	return u, nil
}

// NewHTTPClient builds a client with its own transport so proxy settings do
// not leak into http.DefaultClient
func NewHTTPClient(timeout time.Duration, httpProxy, httpsProxy string) (*http.Client, error) {
	proxy, err := NewProxyFunc(httpProxy, httpsProxy)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}
