// Package sink provides the targets a batch download writes into: a local
// directory, an S3 prefix or an Azure blob container prefix.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/neptunelabs/fsi-client/internal/config"
)

// ErrExists is returned by Create when the target exists and overwrite was
// not requested.
var ErrExists = errors.New("target already exists")

// Sink is a download target. rel is always slash separated and relative to
// the sink's root.
type Sink interface {
	Exists(ctx context.Context, rel string) (bool, error)
	MkdirAll(ctx context.Context, rel string) error
	// Create opens rel for writing. The data becomes visible when the
	// writer is closed; a writer that also implements Aborter discards it
	// on Abort.
	Create(ctx context.Context, rel string, size int64, modTime time.Time, overwrite bool) (io.WriteCloser, error)
	String() string
}

// Aborter is implemented by writers that can discard a partial transfer.
type Aborter interface {
	Abort() error
}

// SpaceChecker is implemented by sinks with a bounded capacity.
type SpaceChecker interface {
	CheckSpace(required int64) error
}

// Schemes accepted by Open besides plain local paths.
const (
	SchemeS3    = "s3://"
	SchemeAzure = "azblob://"
)

// Open selects the sink for target by its scheme. Local directories are
// created on demand. cfg and hc may be nil for local targets.
func Open(ctx context.Context, target string, cfg *config.Config, hc *nethttp.Client) (Sink, error) {
	switch {
	case strings.HasPrefix(target, SchemeS3):
		bucket, prefix := splitBucket(strings.TrimPrefix(target, SchemeS3))
		if bucket == "" {
			return nil, fmt.Errorf("s3 target %q has no bucket", target)
		}
		return NewS3(ctx, bucket, prefix, cfgOrDefault(cfg), hc)
	case strings.HasPrefix(target, SchemeAzure):
		container, prefix := splitBucket(strings.TrimPrefix(target, SchemeAzure))
		if container == "" {
			return nil, fmt.Errorf("azure target %q has no container", target)
		}
		return NewAzure(container, prefix, cfgOrDefault(cfg), hc)
	default:
		return NewLocal(target)
	}
}

func cfgOrDefault(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.New()
	}
	return cfg
}

func splitBucket(s string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(s, "/")
	return bucket, strings.Trim(prefix, "/")
}

// objectKey joins prefix and rel into an object key without a leading slash.
func objectKey(prefix, rel string) string {
	rel = strings.TrimPrefix(strings.ReplaceAll(rel, `\`, "/"), "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// Abort discards w if it supports it and closes it otherwise.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(Aborter); ok {
		return a.Abort()
	}
	return w.Close()
}
