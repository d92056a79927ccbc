package transport

import (
	"context"
	"testing"
)

// testContext mirrors testing.T.Context (Go 1.24+): the context is canceled
// just before Cleanup-registered functions run.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
