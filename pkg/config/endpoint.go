package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ParsedEndpoint holds the components of a model endpoint base URL.
type ParsedEndpoint struct {
	Scheme   string
	Host     string
	Port     string
	BasePath string
}

// ParseEndpointURL parses an http(s) base URL such as https://api.fireworks.ai/inference/v1.
func ParseEndpointURL(rawURL string) (*ParsedEndpoint, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("endpoint URL is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint URL scheme: %s (expected http or https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("endpoint URL has no host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("endpoint URL must not carry a query or fragment")
	}

	return &ParsedEndpoint{
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Port:     u.Port(),
		BasePath: strings.TrimRight(u.Path, "/"),
	}, nil
}

// CompletionsURL returns the chat-completions URL under this base.
func (p *ParsedEndpoint) CompletionsURL() string {
	host := p.Host
	if p.Port != "" {
		host = net.JoinHostPort(p.Host, p.Port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return p.Scheme + "://" + host + p.BasePath + "/chat/completions"
}

// RedactURL removes the password from a URL so it can be logged.
// Unparseable input is replaced entirely.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid url]"
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
