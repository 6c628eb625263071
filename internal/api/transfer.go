package api

import (
	"context"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/neptunelabs/fsi-client/internal/models"
	"github.com/neptunelabs/fsi-client/internal/util/buffers"
	"github.com/neptunelabs/fsi-client/internal/validation"
)

// ByteFunc receives the bytes transferred so far and the expected total,
// -1 if unknown.
type ByteFunc func(done, total int64)

// DownloadInfo describes a finished download.
type DownloadInfo struct {
	Size         int64
	LastModified time.Time
}

// Download streams the content of file e into w. A failed attempt is retried
// as long as nothing was written yet.
func (c *Client) Download(ctx context.Context, e *models.Entry, w io.Writer, onBytes ByteFunc) (DownloadInfo, error) {
	var info DownloadInfo
	if err := c.checkEntry(e); err != nil {
		return info, err
	}
	if e.IsDir() {
		return info, invalidPath(e.FullPath(), validation.ErrUnsafePath)
	}
	query := url.Values{"type": {"download"}, "source": {e.FullPath()}}

	err := c.withRetry(ctx, func() error {
		resp, err := c.transport.Stream(ctx, nethttp.MethodGet, "/fsi/server", query, nil, 0, WithSubject(e.FullPath()))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		info.Size = resp.ContentLength
		if info.Size < 0 && e.Size > 0 {
			info.Size = e.Size
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			if t, err := nethttp.ParseTime(lm); err == nil {
				info.LastModified = t
			}
		}
		if info.LastModified.IsZero() {
			info.LastModified = e.LastModified
		}

		n, err := buffers.Copy(ctx, w, resp.Body, func(done int64) {
			if onBytes != nil {
				onBytes(done, info.Size)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			werr := &Error{Key: KeyRequestFailed, Method: nethttp.MethodGet, Subject: e.FullPath(), Err: err}
			if n > 0 {
				return &noRetry{werr}
			}
			return werr
		}
		info.Size = n
		return nil
	})
	return info, err
}

// Upload stores size bytes from r as targetDir/name. Without overwrite an
// existing file fails with a conflict. Readers that implement io.Seeker are
// rewound and retried after transient failures.
func (c *Client) Upload(ctx context.Context, targetDir, name string, r io.Reader, size int64, overwrite bool, onBytes ByteFunc) error {
	if !c.LoggedIn() {
		return ErrNotLoggedIn
	}
	targetDir = models.NormalizeDir(targetDir)
	if err := validation.ValidateRemotePath(targetDir); err != nil || targetDir == "" {
		return invalidPath(targetDir, err)
	}
	if err := validation.ValidateName(name); err != nil {
		return invalidPath(name, err)
	}

	dest := targetDir + name
	path := "/fsi/service/file/" + escapePath(dest)
	query := url.Values{"overwrite": {strconv.FormatBool(overwrite)}}
	seeker, canRewind := r.(io.Seeker)

	first := true
	return c.withRetry(ctx, func() error {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return &noRetry{&Error{Key: KeyLocalIO, Method: nethttp.MethodPut, Subject: dest, Err: err}}
			}
		}
		first = false

		body := &countingReader{r: r, ctx: ctx, total: size, onBytes: onBytes}
		resp, err := c.transport.Stream(ctx, nethttp.MethodPut, path, query, io.NopCloser(body), size, WithSubject(dest))
		if err != nil {
			if !canRewind || IsConflict(err) {
				return &noRetry{err}
			}
			return err
		}
		drain(resp)
		return nil
	})
}

// countingReader reports upload progress as the HTTP client consumes the
// body.
type countingReader struct {
	r       io.Reader
	ctx     context.Context
	done    int64
	total   int64
	onBytes ByteFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.done += int64(n)
		if c.onBytes != nil {
			c.onBytes(c.done, c.total)
		}
	}
	return n, err
}
