package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ETag derives a strong entity tag from a response body.
// Identical bodies always produce identical tags.
func ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}

// NotModified reports whether the request's If-None-Match header matches
// etag, i.e. the client already holds the current representation.
func NotModified(req *http.Request, etag string) bool {
	if req == nil || etag == "" {
		return false
	}

	header := req.Header.Get("If-None-Match")
	if header == "" {
		return false
	}

	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		// Weak comparison, as for GET
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// SetValidators sets ETag and Cache-Control on a response for data that is
// fresh for maxAge. Infinity is capped at one year.
func SetValidators(header http.Header, etag string, maxAge time.Duration) {
	if header == nil {
		return
	}

	if etag != "" {
		header.Set("ETag", etag)
	}

	const year = 365 * 24 * time.Hour
	if maxAge > year {
		maxAge = year
	}
	if maxAge > 0 {
		header.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}
}
