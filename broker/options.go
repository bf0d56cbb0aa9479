package broker

import "time"

// Option configures a Broker during creation.
//
// Example:
//
//	b := broker.New(imp, broker.WithLeaseTimeout(2*time.Second))
type Option func(*options)

// options holds optional configuration for Broker creation.
type options struct {
	leaseTimeout    time.Duration
	reclaimInterval time.Duration
}

// minReclaimInterval bounds how often expired leases are scanned.
const minReclaimInterval = 10 * time.Millisecond

func defaultOptions() options {
	return options{}
}

// WithLeaseTimeout bounds how long the embedder may hold an exported buffer.
// Export adapters reclaim buffers held longer and log a warning. Zero, the
// default, disables leases.
func WithLeaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.leaseTimeout = d
		}
	}
}

// WithReclaimInterval sets how often expired leases are scanned. It
// defaults to half the lease timeout.
func WithReclaimInterval(d time.Duration) Option {
	return func(o *options) {
		o.reclaimInterval = d
	}
}

func (o *options) interval() time.Duration {
	d := o.reclaimInterval
	if d <= 0 {
		d = o.leaseTimeout / 2
	}
	if d < minReclaimInterval {
		d = minReclaimInterval
	}
	return d
}
