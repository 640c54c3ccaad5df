//go:build !linux

package loopback

// Transport is an unusable stub on platforms without an epoll poller
// backing this reference transport; construct with New to observe the
// explicit error.
type Transport struct{}

// New always fails on non-Linux platforms: this reference transport is
// built on an epoll poller and has no portable
// fallback backend (a production, portable transport is out of scope for
// this core; see SPEC_FULL.md).
func New() (*Transport, error) {
	return nil, ErrUnsupportedPlatform
}
