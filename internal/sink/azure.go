package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog/log"

	"github.com/neptunelabs/fsi-client/internal/config"
)

// ErrNoAzureServiceURL is returned when an azblob target is used without a
// configured service URL.
var ErrNoAzureServiceURL = errors.New("azure service URL (with SAS token) is not configured")

// Azure writes block blobs below a prefix of a container. Authentication is
// the SAS token embedded in the configured service URL.
type Azure struct {
	container *container.Client
	name      string
	prefix    string
}

// NewAzure creates the sink.
func NewAzure(containerName, prefix string, cfg *config.Config, hc *nethttp.Client) (*Azure, error) {
	if cfg.AzureServiceURL == "" {
		return nil, ErrNoAzureServiceURL
	}
	opts := &azblob.ClientOptions{}
	if hc != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: hc}
	}
	client, err := azblob.NewClientWithNoCredential(cfg.AzureServiceURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return &Azure{
		container: client.ServiceClient().NewContainerClient(containerName),
		name:      containerName,
		prefix:    prefix,
	}, nil
}

func (a *Azure) String() string {
	if a.prefix == "" {
		return SchemeAzure + a.name
	}
	return SchemeAzure + a.name + "/" + a.prefix
}

// Exists implements Sink.
func (a *Azure) Exists(ctx context.Context, rel string) (bool, error) {
	_, err := a.container.NewBlockBlobClient(objectKey(a.prefix, rel)).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ResourceNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("get properties of %s: %w", objectKey(a.prefix, rel), err)
}

// MkdirAll implements Sink. Containers have no directories.
func (a *Azure) MkdirAll(context.Context, string) error {
	return nil
}

// Create implements Sink. The blob is streamed with UploadStream while the
// caller writes; Close waits for the upload to commit.
func (a *Azure) Create(ctx context.Context, rel string, _ int64, modTime time.Time, overwrite bool) (io.WriteCloser, error) {
	key := objectKey(a.prefix, rel)
	if !overwrite {
		exists, err := a.Exists(ctx, rel)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", key, ErrExists)
		}
	}

	var meta map[string]*string
	if !modTime.IsZero() {
		meta = map[string]*string{"mtime": to.Ptr(strconv.FormatInt(modTime.Unix(), 10))}
	}

	pr, pw := io.Pipe()
	w := &azureWriter{pw: pw, done: make(chan error, 1), key: key}
	blob := a.container.NewBlockBlobClient(key)
	go func() {
		_, err := blob.UploadStream(ctx, pr, &blockblob.UploadStreamOptions{Metadata: meta})
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

var errAzureAborted = errors.New("upload aborted")

type azureWriter struct {
	pw     *io.PipeWriter
	done   chan error
	key    string
	closed bool
}

func (w *azureWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *azureWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.Close()
	if err := <-w.done; err != nil {
		return fmt.Errorf("upload %s: %w", w.key, err)
	}
	log.Debug().Str("blob", w.key).Msg("uploaded blob")
	return nil
}

// Abort fails the stream so no block list is committed.
func (w *azureWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pw.CloseWithError(errAzureAborted)
	<-w.done
	return nil
}
