// Package httpc holds the HTTP client used to reach the peers' side-channel
// endpoints, such as the camera stream.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations. The embedded peers sit on a phone
// hotspot, so connect timeouts are kept short.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 3 * time.Second
	DefaultKeepAlive       = 15 * time.Second
	DefaultIdleConnTimeout = 30 * time.Second
)

// Client is a shared HTTP client with production-ready defaults.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified overall timeout.
// A zero timeout leaves the request bounded only by its context, which is
// what long-lived MJPEG streams need.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			ResponseHeaderTimeout: DefaultConnectTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
