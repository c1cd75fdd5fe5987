package display

import (
	"context"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sandbox runs the scripts embedded in a rendered fragment. Scripts see only
// console and a display object bound to the panel; there is no module
// loader, no process and no timers.
type Sandbox struct {
	Timeout time.Duration
}

func NewSandbox(timeout time.Duration) *Sandbox {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Sandbox{Timeout: timeout}
}

// Run executes src against panel. Every call gets a fresh VM.
func (sb *Sandbox) Run(ctx context.Context, src string, panel *Panel) error {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)
	if err := sb.globals(vm, panel); err != nil {
		return err
	}

	timer := time.NewTimer(sb.Timeout)
	defer timer.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	if _, err := vm.RunString(src); err != nil {
		return errors.Wrap(err, "running fragment script")
	}
	return nil
}

func (sb *Sandbox) globals(vm *goja.Runtime, panel *Panel) error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	_ = vm.Set("setTimeout", noop)
	_ = vm.Set("setInterval", noop)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		_ = console.Set(level, consoleFunc(level))
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	display := vm.NewObject()
	_ = display.Set("html", func() string { return panel.HTML() })
	_ = display.Set("replace", func(html string) { panel.Replace(html) })
	return vm.Set("display", display)
}

func consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		ev := log.Info()
		switch level {
		case "warn":
			ev = log.Warn()
		case "error":
			ev = log.Error()
		}
		ev.Str("component", "display").Str("console", level).Msg(strings.Join(parts, " "))
		return goja.Undefined()
	}
}
