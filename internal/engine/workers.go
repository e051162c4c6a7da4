package engine

import (
	"fmt"
	"sync"

	"github.com/talgya/mini-city/internal/agents"
)

// taskResult is what one agent task leaves for the join.
type taskResult struct {
	outbox []agents.Message
	err    error
}

// runAgents runs decide, update and message handling for every agent on at
// most e.workers goroutines, then delivers all outgoing messages in agent
// order so next tick's mailboxes do not depend on scheduling. Returns the
// number of failed tasks and delivered messages.
func (e *Engine) runAgents(ctx *agents.Context, view []agents.Agent, dt float64) (failures, delivered int) {
	results := make([]taskResult, len(view))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, a := range view {
		i, a := i, a
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = runAgent(ctx, a, dt)
		}()
	}
	wg.Wait()

	for i, r := range results {
		if r.err != nil {
			failures++
			a := view[i]
			e.log.Warn("agent task failed", "agent", a.ID(), "type", a.Type(), "cycle", ctx.Cycle, "err", r.err)
		}
		for _, m := range r.outbox {
			if err := e.registry.Send(m); err != nil {
				e.log.Debug("message not delivered", "kind", m.Kind, "from", m.From, "err", err)
				continue
			}
			delivered++
		}
	}
	return failures, delivered
}

// runAgent is one agent's share of a tick. A panic fails only this agent;
// messages produced before it are kept.
func runAgent(ctx *agents.Context, a agents.Agent, dt float64) (res taskResult) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()

	d := a.Decide(ctx)
	res.outbox = append(res.outbox, d.Outbox...)
	a.Update(dt)
	for _, msg := range a.Common().Mailbox.Drain() {
		if reply := a.HandleMessage(msg); reply != nil {
			res.outbox = append(res.outbox, *reply)
		}
	}
	return res
}
