package policy

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// newSandbox creates a goja runtime with network, module and code-generation
// globals removed.
func newSandbox() *goja.Runtime {
	rt := goja.New()
	rt.Set("require", goja.Undefined())
	rt.Set("fetch", goja.Undefined())
	rt.Set("XMLHttpRequest", goja.Undefined())
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())
	return rt
}

// runWithTimeout interrupts the runtime when fn outlives timeout.
func runWithTimeout(rt *goja.Runtime, timeout time.Duration, fn func() (goja.Value, error)) (goja.Value, error) {
	type result struct {
		v   goja.Value
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		rt.Interrupt("policy evaluation timeout")
		select {
		case r := <-done:
			if r.err != nil {
				return nil, fmt.Errorf("policy timed out: %w", r.err)
			}
			return nil, fmt.Errorf("policy timed out")
		case <-time.After(200 * time.Millisecond):
			return nil, fmt.Errorf("policy timed out")
		}
	}
}
