//go:build !linux

package loopback

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms without an epoll
// poller backing this reference transport.
var ErrUnsupportedPlatform = errors.New("loopback: unsupported platform, epoll required")

type poller struct{}

func newPoller() (*poller, error) {
	return nil, ErrUnsupportedPlatform
}
