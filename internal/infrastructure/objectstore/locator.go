package objectstore

import (
	"fmt"
	"strings"
)

const s3Scheme = "s3://"

// Locator addresses one object.
type Locator struct {
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return s3Scheme + l.Bucket + "/" + l.Key
}

// ParseLocator accepts "s3://bucket/key" or a bare key resolved against defaultBucket.
func ParseLocator(raw, defaultBucket string) (Locator, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Locator{}, fmt.Errorf("empty object locator")
	}
	if rest, ok := strings.CutPrefix(s, s3Scheme); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || strings.Trim(key, "/") == "" {
			return Locator{}, fmt.Errorf("invalid object locator %q", raw)
		}
		return Locator{Bucket: bucket, Key: key}, nil
	}
	if strings.Contains(s, "://") {
		return Locator{}, fmt.Errorf("unsupported locator scheme in %q", raw)
	}
	if defaultBucket == "" {
		return Locator{}, fmt.Errorf("locator %q has no bucket and no default bucket is configured", raw)
	}
	return Locator{Bucket: defaultBucket, Key: strings.TrimPrefix(s, "/")}, nil
}
