// Package buffers pools the copy buffers used by uploads and downloads.
package buffers

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/neptunelabs/fsi-client/internal/constants"
)

var allocations atomic.Int64

var transferPool = &sync.Pool{
	New: func() interface{} {
		allocations.Add(1)
		buf := make([]byte, constants.TransferBufferSize)
		return &buf
	},
}

// GetTransferBuffer retrieves a buffer from the pool. Return it with
// PutTransferBuffer once the copy is done.
func GetTransferBuffer() *[]byte {
	return transferPool.Get().(*[]byte)
}

// PutTransferBuffer returns buf to the pool. Buffers of a foreign size are
// dropped.
func PutTransferBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == constants.TransferBufferSize {
		transferPool.Put(buf)
	}
}

// Allocations returns how many buffers the pool has created.
func Allocations() int64 {
	return allocations.Load()
}

// Copy copies src to dst through a pooled buffer. It stops with ctx.Err()
// between chunks once ctx is done and calls onBytes, if set, with the running
// total after every chunk.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, onBytes func(done int64)) (int64, error) {
	buf := GetTransferBuffer()
	defer PutTransferBuffer(buf)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(*buf)
		if n > 0 {
			m, werr := dst.Write((*buf)[:n])
			written += int64(m)
			if onBytes != nil {
				onBytes(written)
			}
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
