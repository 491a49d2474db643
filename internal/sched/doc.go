// Package sched implements the cooperative task scheduler that drives the
// transaction engine.
//
// The engine never blocks and never spawns goroutines. Every point where the
// engine yields control is a call to Scheduler.Schedule: the current stretch
// of synchronous code returns, and the scheduled task runs on a later tick.
//
// Queue is the stock implementation. It is a FIFO of tasks drained one task
// per tick, in insertion order, with no priority and no cancellation. Tests
// drive it deterministically with Step and Flush; long-running embedders
// call Run from a single goroutine.
//
// Tick numbering: Ticks returns the number of tasks started so far, so code
// running inside a task observes its own 1-based tick. Two observations with
// different tick values were separated by at least one scheduler hand-off.
package sched
