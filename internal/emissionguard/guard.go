// Package emissionguard carries the emission engine's recursion flag
// through a context.Context, so any code that re-enters the inbound
// pipeline from inside a dispatch task (e.g. a misconfigured subscriber
// looping back to this gateway) can detect it and refuse to schedule a
// further round of emissions (spec §4.8).
package emissionguard

import "context"

type ctxKey struct{}

// Mark returns a context flagged as running inside an emission task.
func Mark(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, true)
}

// InProgress reports whether ctx descends from one returned by Mark.
func InProgress(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}
