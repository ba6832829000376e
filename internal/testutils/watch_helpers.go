package testutils

import (
	"context"
	"time"

	. "github.com/onsi/gomega"

	"github.com/l7mp/triplestream/pkg/binding"
	"github.com/l7mp/triplestream/pkg/engine"
	"github.com/l7mp/triplestream/pkg/term"
)

// TryWatchSolution attempts to receive a solution from a channel within the specified timeout.
// Returns the solution and true if successful, or an empty solution and false if timeout occurs.
func TryWatchSolution(watcher chan engine.Solution, timeout time.Duration) (engine.Solution, bool) {
	select {
	case s := <-watcher:
		return s, true
	case <-time.After(timeout):
		return engine.Solution{}, false
	}
}

// TryWatchError attempts to receive an error from a channel within the specified timeout.
func TryWatchError(errCh chan error, timeout time.Duration) (error, bool) {
	select {
	case err := <-errCh:
		return err, true
	case <-time.After(timeout):
		return nil, false
	}
}

// MatchSolution validates that a solution carries exactly the expected bindings.
func MatchSolution(s engine.Solution, query string, expected map[string]term.Term) {
	Expect(s.Query).To(Equal(query))
	Expect(s.Bindings.Equal(binding.FromMap(expected))).To(BeTrue(),
		"expected bindings %v, got %s", expected, s.Bindings)
}

// ChannelHandler returns a result handler that forwards solutions to the returned channel.
func ChannelHandler(size int) (engine.Handler, chan engine.Solution) {
	ch := make(chan engine.Solution, size)
	return func(_ context.Context, s engine.Solution) error {
		ch <- s
		return nil
	}, ch
}
