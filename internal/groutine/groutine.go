// Package groutine starts named goroutines that show up labelled in pprof
// profiles and can be waited on as a group.
package groutine

import (
	"context"
	"fmt"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts a goroutine carrying a pprof "goroutine_name" label.
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// PanicHandler is told about a recovered panic and the goroutine it came from.
type PanicHandler func(name string, err error)

// Group runs named goroutines and waits for all of them.
// A panic in one member is recovered, reported and does not take the
// process down.
type Group struct {
	wg      sync.WaitGroup
	onPanic PanicHandler
}

// NewGroup creates a Group. onPanic may be nil.
func NewGroup(onPanic PanicHandler) *Group {
	return &Group{onPanic: onPanic}
}

// Go starts fn as a labelled member of the group.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(ctx, name, func(ctx context.Context) {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil && g.onPanic != nil {
				g.onPanic(name, fmt.Errorf("panic: %v", r))
			}
		}()
		fn(ctx)
	})
}

// Wait blocks until every member has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
