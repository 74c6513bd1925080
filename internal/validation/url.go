package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// BrowserURL builds the URL opened for a listen address. Wildcard hosts are
// replaced by localhost since browsers cannot dial them.
func BrowserURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	u := "http://" + net.JoinHostPort(host, port)
	if err := ValidateURL(u); err != nil {
		return "", err
	}
	return u, nil
}

// ValidateURL checks a URL before it is handed to the platform browser
// opener: http or https, a host, and no shell metacharacters or whitespace.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if strings.ContainsAny(rawURL, " \t\r\n") {
		return fmt.Errorf("URL contains whitespace")
	}
	for _, char := range shellMetacharacters {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %s", char)
		}
	}
	return nil
}
