package session

import (
	"context"
	"time"

	"github.com/audiolibrelab/screencapture/internal/capture"
)

// Saver stores a finalized recording under a suggested name
type Saver interface {
	Save(ctx context.Context, payload *capture.Payload, suggestedName string) error
}

// Confirmer asks the user a yes/no question and blocks until answered
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to a Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm answers yes to every prompt
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// Ticker delivers ticks until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

// RealClock uses time.Ticker
type RealClock struct{}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time {
	return r.t.C
}

func (r realTicker) Stop() {
	r.t.Stop()
}
