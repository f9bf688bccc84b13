package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages an actor cannot handle in its current state.
// Replayed messages keep their original sender so pending requests can still be answered.
type Stash struct {
	pending []stashedMessage
}

type stashedMessage struct {
	msg    any
	sender *actor.PID
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.pending = append(s.pending, stashedMessage{msg: msg, sender: ctx.Sender()})
}

func (s *Stash) Len() int {
	return len(s.pending)
}

// UnstashAll replays every stashed message to self in arrival order.
func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.pending
	s.pending = nil
	for _, m := range pending {
		replay(ctx, m)
	}
}

// UnstashOldest replays a single message, used by actors that process one request at a time.
func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.pending) == 0 {
		return
	}
	m := s.pending[0]
	s.pending = s.pending[1:]
	replay(ctx, m)
}

func replay(ctx actor.Context, m stashedMessage) {
	ctx.RequestWithCustomSender(ctx.Self(), m.msg, m.sender)
}
