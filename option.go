package agentfund

import (
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/events"
	"github.com/vitwit/agentfund/logger"
	"github.com/vitwit/agentfund/metrics"
)

type Option func(*Program)

// WithLogger replaces the default noop logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Program) {
		p.log = l
	}
}

// WithMetrics replaces the default noop recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Program) {
		p.metrics = r
	}
}

// WithSink subscribes a sink to the event log of every committed
// transaction.
func WithSink(s events.Sink) Option {
	return func(p *Program) {
		p.sink = s
	}
}

// WithClock replaces the wall clock. The clock is read exactly once per
// entry-point invocation.
func WithClock(clock func() int64) Option {
	return func(p *Program) {
		p.clock = clock
	}
}

// WithProgramID changes the program identity all record addresses are
// derived under.
func WithProgramID(id solana.PublicKey) Option {
	return func(p *Program) {
		p.programID = id
	}
}
