package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockHook struct {
	expectedCalls []HookCtx
}

func (h *mockHook) ExpectHookCall(ctx HookCtx) {
	h.expectedCalls = append(h.expectedCalls, ctx)
}

func (h *mockHook) AllExpectedCalled() {
	Expect(h.expectedCalls).To(BeEmpty())
}

func (h *mockHook) Func(ctx HookCtx) {
	Expect(h.expectedCalls).NotTo(BeEmpty())
	Expect(ctx.Domain).To(BeIdenticalTo(h.expectedCalls[0].Domain))
	Expect(ctx.Pos).To(BeIdenticalTo(h.expectedCalls[0].Pos))
	Expect(ctx.Item).To(Equal(h.expectedCalls[0].Item))
	h.expectedCalls = h.expectedCalls[1:]
}

var posA = &HookPos{Name: "A"}

var _ = Describe("HookableBase", func() {
	var domain *HookableBase

	BeforeEach(func() {
		domain = NewHookableBase()
	})

	It("should invoke hooks in registration order", func() {
		first := &mockHook{}
		second := &mockHook{}
		domain.AcceptHook(first)
		domain.AcceptHook(second)

		ctx := HookCtx{Domain: domain, Pos: posA, Item: 3}
		first.ExpectHookCall(ctx)
		second.ExpectHookCall(ctx)

		domain.InvokeHook(ctx)

		first.AllExpectedCalled()
		second.AllExpectedCalled()
		Expect(domain.NumHooks()).To(Equal(2))
		Expect(domain.Hooks()).To(HaveLen(2))
	})

	It("should refuse the same hook twice", func() {
		hook := &mockHook{}
		domain.AcceptHook(hook)

		Expect(func() { domain.AcceptHook(hook) }).To(Panic())
	})

	It("should accept several function hooks", func() {
		calls := 0
		f := HookFunc(func(HookCtx) { calls++ })

		domain.AcceptHook(f)
		domain.AcceptHook(f)
		domain.InvokeHook(HookCtx{Domain: domain, Pos: posA})

		Expect(calls).To(Equal(2))
	})
})
