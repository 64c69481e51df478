package core

import "context"

// ExchangeIDDefault is logged and exported when no exchange id is bound
// to the current context.
const ExchangeIDDefault = "-"

type exchangeIDKey struct{}

// WithExchangeID returns a child context carrying the exchange id of the
// current run. Nested scopes layer naturally: the previous value is
// restored when the child context goes out of scope.
func WithExchangeID(ctx context.Context, exchangeID string) context.Context {
	return context.WithValue(ctx, exchangeIDKey{}, exchangeID)
}

// ExchangeID returns the exchange id bound to ctx, or ExchangeIDDefault
// when the context carries none.
func ExchangeID(ctx context.Context) string {
	if ctx == nil {
		return ExchangeIDDefault
	}
	if id, ok := ctx.Value(exchangeIDKey{}).(string); ok && id != "" {
		return id
	}
	return ExchangeIDDefault
}
