// Package constants holds tuning values shared across packages.
package constants

import "time"

// Application identity.
const (
	AppName   = "fsi-client"
	ConfigDir = "fsi-client"
	UserAgent = "fsi-client"
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (30 seconds)
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPRequestTimeout - overall timeout of a JSON API call (5 minutes)
	HTTPRequestTimeout = 300 * time.Second
)

// Retry defaults for API calls.
const (
	DefaultMaxRetries   = 4
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 15 * time.Second
)

// Rate limit defaults: FSI servers do not publish a limit, these keep a batch
// of thousands of entries from saturating a small server.
const (
	DefaultRequestsPerSecond = 20.0
	DefaultBurst             = 40
)

// Event bus buffer sizes
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for event channels
	EventBusMaxBuffer = 4096
)

// Transfer settings
const (
	// TransferBufferSize - copy buffer for uploads and downloads (256 KiB)
	TransferBufferSize = 256 * 1024

	// DiskSpaceSafetyMargin - extra free space required before a download batch
	DiskSpaceSafetyMargin = 1.05
)
