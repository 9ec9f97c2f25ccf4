package dec

import "github.com/sarchlab/coupling/hooking"

// HookPosSynchronized marks the end of Synchronize. The hook item is the
// channel Info.
var HookPosSynchronized = &hooking.HookPos{Name: "Channel Synchronized"}

// HookPosRoundCompleted marks the end of a transfer in either direction.
var HookPosRoundCompleted = &hooking.HookPos{Name: "Round Completed"}

// Info is a snapshot of a channel as seen from one rank.
type Info struct {
	Name        string
	Rank        int
	Side        string
	State       State
	Round       int
	NbUnmatched int
}

// Info returns a snapshot of the channel. Rank is the rank of the caller in
// the parent communicator of the groups.
func (c *Channel) Info() Info {
	side := "outside"
	switch {
	case c.IsInSourceSide():
		side = "source"
	case c.IsInTargetSide():
		side = "target"
	}

	return Info{
		Name:        c.name,
		Rank:        c.source.Parent().Rank(),
		Side:        side,
		State:       c.state,
		Round:       c.round,
		NbUnmatched: c.nbUnmatched,
	}
}

func (c *Channel) invoke(pos *hooking.HookPos) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   c.Info(),
	})
}
