// Package mediaurl reduces the storage URLs the backend hands out for
// generated media to one canonical locator per object. The backend mixes
// plain and presigned S3 URLs in both path style and virtual-hosted style;
// all of them must collide on the same locator so that schedule lookups for
// the same object hit the same cache entry.
package mediaurl

import (
	"net/url"
	"strings"
)

// ephemeralHostSuffixes marks CDN hosts whose URLs expire shortly after
// issue. An expiring URL cannot serve as a stable identity, so these are
// never canonicalized. Each entry matches the apex host and any subdomain.
var ephemeralHostSuffixes = []string{
	".oaiusercontent.com",
	".oaidalleapiprodscus.blob.core.windows.net",
	".replicate.delivery",
}

// Canonicalize reduces a media URL to its canonical "s3://bucket/key"
// locator. The second return is false for empty input, ephemeral-CDN URLs,
// and anything that matches neither durable-storage shape; callers treat
// that as "no stable identity, skip schedule lookup".
//
// Canonicalize is pure and idempotent: a presigned URL and a plain URL to
// the same object produce the same locator, and feeding a locator back in
// returns it unchanged.
func Canonicalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	switch u.Scheme {
	case "s3":
		// Already canonical, minus any query a caller left attached.
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return "", false
		}
		return locator(u.Host, key), true
	case "http", "https":
	default:
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || isEphemeral(host) {
		return "", false
	}

	// Virtual-hosted style: bucket.s3[.region].amazonaws.com/key
	if i := strings.LastIndex(host, ".s3"); i > 0 && isStorageEndpoint(host[i+1:]) {
		bucket := host[:i]
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return "", false
		}
		return locator(bucket, key), true
	}

	// Path style: s3[.region].amazonaws.com/bucket/key
	if isStorageEndpoint(host) {
		bucket, key, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if !ok || bucket == "" || key == "" {
			return "", false
		}
		return locator(bucket, key), true
	}

	return "", false
}

// isStorageEndpoint reports whether host is an S3 service endpoint, with or
// without a region segment. Both the modern dot form (s3.us-east-1) and the
// legacy dash form (s3-us-west-2) appear in stored URLs.
func isStorageEndpoint(host string) bool {
	if host == "s3.amazonaws.com" {
		return true
	}
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return false
	}
	return strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-")
}

func isEphemeral(host string) bool {
	for _, suffix := range ephemeralHostSuffixes {
		if host == suffix[1:] || strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

func locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
