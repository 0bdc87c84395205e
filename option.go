package tiermint

import (
	"time"

	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/metrics"
)

type Option func(*Minter)

func WithLogger(l logger.Logger) Option {
	return func(m *Minter) {
		m.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(m *Minter) {
		m.metrics = r
	}
}

// WithTimeout bounds contract reads and pre-flight checks. The confirmation
// wait has its own bound in Config.
func WithTimeout(t time.Duration) Option {
	return func(m *Minter) {
		m.timeout = t
	}
}

// WithApprover is asked before every transaction is signed.
func WithApprover(a clients.Approver) Option {
	return func(m *Minter) {
		m.approver = a
	}
}
