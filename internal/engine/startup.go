package engine

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the engine is reachable with its configured
// credentials and reports the result to w.
func EnsureReady(ctx context.Context, e Engine, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("generative engine %s is not reachable; check the api key and model", e.Name())
	}
	fmt.Fprintf(w, "engine %s: ready\n", e.Name())
	return nil
}
