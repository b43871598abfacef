package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Source is a stable identity for one scrapeable program page. The ID is
// derived from the canonicalized URL so that re-scrapes of the same page
// always land in the same version history.
type Source struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Label      string    `json:"label,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// NewSource builds a Source from a raw URL and optional display label.
func NewSource(rawURL, label string) (*Source, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Source{
		ID:    SourceID(canonical),
		URL:   canonical,
		Label: label,
	}, nil
}

// CanonicalURL normalizes a URL for identity purposes: lowercases scheme and
// host, drops default ports, fragments, tracking query parameters, and a
// trailing slash on the path.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", eris.Wrapf(err, "model: parse url %q", rawURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", eris.Errorf("model: url %q missing scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	// Strip tracking parameters; keep everything else in sorted order
	// (url.Values.Encode sorts keys).
	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// SourceID returns the identifier for a canonical URL: the first 16 bytes of
// its SHA-256 digest, hex-encoded.
func SourceID(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:16])
}

// TextHash returns the SHA-256 hex digest of normalized text. Records carry
// it so identical re-scrapes can be detected without comparing full payloads.
func TextHash(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}
