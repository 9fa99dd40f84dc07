package validation

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidURL = errors.New("invalid server URL")

// ServerURLValidator checks the websocket URL of the server.
type ServerURLValidator struct {
	// AllowLocalhost determines if loopback hosts are permitted
	AllowLocalhost bool
	// AllowPrivateIPs determines if private IP addresses are permitted
	AllowPrivateIPs bool
	// MaxLength is the maximum allowed URL length
	MaxLength int
}

// NewServerURLValidator allows local and private hosts, where the server
// usually runs.
func NewServerURLValidator() *ServerURLValidator {
	return &ServerURLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// NewStrictServerURLValidator only accepts public hosts.
func NewStrictServerURLValidator() *ServerURLValidator {
	return &ServerURLValidator{MaxLength: 2048}
}

// ValidateAndNormalize returns input as a ws:// or wss:// URL. A missing
// scheme defaults to ws, http and https map onto ws and wss.
func (v *ServerURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", errors.Wrap(ErrInvalidURL, "URL cannot be empty")
	}
	if len(input) > v.MaxLength {
		return "", errors.Wrapf(ErrInvalidURL, "URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return "", errors.Wrap(ErrInvalidURL, "URL contains invalid characters")
	}

	if !strings.Contains(input, "://") {
		input = "ws://" + input
	}

	parsedURL, err := url.Parse(input)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidURL, "invalid URL format: %v", err)
	}

	switch strings.ToLower(parsedURL.Scheme) {
	case "ws", "http":
		parsedURL.Scheme = "ws"
	case "wss", "https":
		parsedURL.Scheme = "wss"
	default:
		return "", errors.Wrapf(ErrInvalidURL, "unsupported scheme %q, use ws or wss", parsedURL.Scheme)
	}

	if parsedURL.Hostname() == "" {
		return "", errors.Wrap(ErrInvalidURL, "URL must have a valid hostname")
	}
	if parsedURL.User != nil {
		return "", errors.Wrap(ErrInvalidURL, "credentials in the URL are not supported")
	}
	if err := v.validateHost(parsedURL.Hostname()); err != nil {
		return "", err
	}

	if parsedURL.Path == "" {
		parsedURL.Path = "/"
	}
	return parsedURL.String(), nil
}

func (v *ServerURLValidator) validateHost(hostname string) error {
	if !v.AllowLocalhost && isLocalhost(hostname) {
		return errors.Wrap(ErrInvalidURL, "localhost URLs are not permitted")
	}
	if !v.AllowPrivateIPs {
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Wrap(ErrInvalidURL, "private IP addresses are not permitted")
		}
	}
	if hostname == "0.0.0.0" || hostname == "255.255.255.255" {
		return errors.Wrapf(ErrInvalidURL, "%s is not a dialable host", hostname)
	}
	return nil
}

// isLocalhost checks if a hostname refers to localhost
func isLocalhost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// isPrivateIP reports private, link-local and loopback addresses.
func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
