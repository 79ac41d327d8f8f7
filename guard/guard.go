// Package guard provides the security primitives shared across the collector:
// path containment checks, URL safety checks (SSRF prevention), filename
// sanitization, and bounded I/O helpers.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// MinSecretLen is the minimum acceptable length for symmetric signing keys.
// 32 bytes = 256 bits of entropy.
const MinSecretLen = 32

// MaxResponseBody is the default cap for HTTP response body reads (10 MiB).
const MaxResponseBody int64 = 10 << 20

// ErrSecretTooShort is returned when a signing key does not meet MinSecretLen.
var ErrSecretTooShort = fmt.Errorf("guard: secret must be at least %d bytes", MinSecretLen)

// ErrPathTraversal is returned when a user-supplied path escapes its root.
var ErrPathTraversal = errors.New("guard: path traversal detected")

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("guard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// SafePath validates that joining root and userInput does not escape root.
// Percent-encoded sequences are decoded before checking so that %2e%2e does
// not slip through. Returns the cleaned absolute path or ErrPathTraversal.
// No filesystem access is performed.
func SafePath(root, userInput string) (string, error) {
	if userInput == "" {
		return "", fmt.Errorf("guard: empty path")
	}
	decoded, err := url.PathUnescape(userInput)
	if err != nil {
		return "", fmt.Errorf("guard: undecodable path: %w", err)
	}
	if strings.Contains(decoded, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(root, filepath.Clean("/"+decoded))
	if !strings.HasPrefix(cleaned, filepath.Clean(root)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(root) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeFilename replaces characters unsuitable for filenames and trims the
// result to maxLen bytes, preserving the extension.
func SanitizeFilename(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 255
	}
	s := unsafeFilenameChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, " .")
	if len(s) > maxLen {
		ext := filepath.Ext(s)
		if len(ext) >= maxLen {
			ext = ""
		}
		s = s[:maxLen-len(ext)] + ext
	}
	return s
}

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback IP (SSRF prevention).
// DNS resolution is performed to catch rebinding via internal hostnames.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("guard: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// DNS failure — allow through; the caller gets a network error at
		// connection time anyway.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r, erroring if the limit is
// exceeded.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := io.LimitReader(r, maxBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("guard: content exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"169.254.0.0/16",
		"::1/128",
	}
	for _, pr := range privateRanges {
		_, cidr, err := net.ParseCIDR(pr)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
