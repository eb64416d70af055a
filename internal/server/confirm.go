package server

import (
	"context"
	"errors"

	"github.com/audiolibrelab/screencapture/internal/session"
)

type confirmationKey struct{}

var errNoConfirmation = errors.New("request carries no confirmation")

// WithConfirmation attaches the answer the web page collected before the request
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmationKey{}, confirmed)
}

// RequestConfirmer answers prompts from the confirmation attached to the request context
var RequestConfirmer = session.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
	confirmed, ok := ctx.Value(confirmationKey{}).(bool)
	if !ok {
		return false, errNoConfirmation
	}
	return confirmed, nil
})
