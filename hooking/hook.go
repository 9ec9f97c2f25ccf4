// Package hooking lets observers attach to the request manager, the transport
// and the exchange channels without those components knowing about tracers
// or monitors.
package hooking

// HookPos names a point in the life of a hookable object where hooks fire.
// Positions are compared by pointer.
type HookPos struct {
	Name string
}

// HookCtx describes one firing of a hook.
type HookCtx struct {
	// Domain is the object firing the hook.
	Domain Hookable

	// Pos is where in the life of Domain the hook fires.
	Pos *HookPos

	// Item is what the hook is about, such as a request snapshot or a
	// message envelope.
	Item any

	// Detail is extra data some positions attach. It is often nil.
	Detail any
}

// Hookable is implemented by objects that hooks can observe.
type Hookable interface {
	// AcceptHook registers a hook. Hooks are registered before the object
	// is used and are never removed.
	AcceptHook(hook Hook)

	// NumHooks returns how many hooks are registered.
	NumHooks() int

	// Hooks returns the registered hooks in registration order.
	Hooks() []Hook
}

// Hook observes hookable objects.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc lets a plain function serve as a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase keeps the hook list of a Hookable. Embed it to implement the
// interface.
type HookableBase struct {
	hooks []Hook
}

// NewHookableBase returns an empty HookableBase.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// NumHooks returns how many hooks are registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns the registered hooks.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook registers a hook. Registering the same hook value twice
// panics. Function hooks cannot be compared and are always accepted.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc && h.has(hook) {
		panic("duplicated hook")
	}

	h.hooks = append(h.hooks, hook)
}

func (h *HookableBase) has(hook Hook) bool {
	for _, existing := range h.hooks {
		if _, isFunc := existing.(HookFunc); isFunc {
			continue
		}

		if existing == hook {
			return true
		}
	}

	return false
}

// InvokeHook calls every hook with ctx, in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}
