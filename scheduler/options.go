package scheduler

import "math/rand/v2"

type groupOptions struct {
	logger       Logger
	rng          *rand.Rand
	initialPages int
}

// Option configures a Group at construction time.
type Option interface {
	applyGroup(*groupOptions)
}

type optionFunc func(*groupOptions)

func (f optionFunc) applyGroup(o *groupOptions) { f(o) }

// WithLogger sets the Logger a Group reports activity to. The default is a
// no-op logger.
func WithLogger(logger Logger) Option {
	return optionFunc(func(o *groupOptions) {
		o.logger = logger
	})
}

// WithRandSource overrides the task-id random source. Mainly useful for
// deterministic tests that do not want to depend on the debug build tag.
func WithRandSource(rng *rand.Rand) Option {
	return optionFunc(func(o *groupOptions) {
		o.rng = rng
	})
}

// WithInitialPages pre-allocates n waker pages (n*waker.W slots) up front,
// avoiding page-vector growth during an initial burst of inserts.
func WithInitialPages(n int) Option {
	return optionFunc(func(o *groupOptions) {
		o.initialPages = n
	})
}

func resolveGroupOptions(opts []Option) *groupOptions {
	o := &groupOptions{
		logger: noopLogger{},
		rng:    newIDSource(),
	}
	for _, opt := range opts {
		opt.applyGroup(o)
	}
	return o
}
