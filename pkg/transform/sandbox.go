package transform

import (
	"fmt"

	"github.com/dop251/goja"
)

// applySandbox strips host-environment globals from a VM so transform
// expressions stay pure value rewrites.
func applySandbox(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",
		"module",
		"exports",
		"process",
		"global",
		"__dirname",
		"__filename",
		"Buffer",
		"setImmediate",
		"clearImmediate",
		"setTimeout",
		"setInterval",
	}

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed in transform expressions"))
	}
	if err := vm.Set("eval", restrictedEval); err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}

	return nil
}
