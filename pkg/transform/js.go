package transform

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// jsEvaluator runs one compiled expression in a sandboxed VM. The VM is
// reused across calls; a mutex guards it in case a Set is shared.
type jsEvaluator struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	prog    *goja.Program
	timeout time.Duration
}

func newJSEvaluator(expr string, timeout time.Duration) (*jsEvaluator, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty js expression")
	}

	prog, err := goja.Compile("transform", "("+expr+")", true)
	if err != nil {
		return nil, fmt.Errorf("compile js expression: %w", err)
	}

	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, fmt.Errorf("sandbox setup: %w", err)
	}

	return &jsEvaluator{vm: vm, prog: prog, timeout: timeout}, nil
}

// eval runs the expression with the field bound to the global `value`.
// Any failure, including interruption on timeout, degrades to the original
// value.
func (e *jsEvaluator) eval(value string) (out string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out = value
		}
	}()

	if err := e.vm.Set("value", value); err != nil {
		return value
	}

	timer := time.AfterFunc(e.timeout, func() {
		e.vm.Interrupt("transform timeout")
	})
	defer timer.Stop()
	defer e.vm.ClearInterrupt()

	res, err := e.vm.RunProgram(e.prog)
	if err != nil {
		return value
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return value
	}
	return res.String()
}
