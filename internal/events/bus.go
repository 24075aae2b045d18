// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Each subscriber receives events on
// its own goroutine in publish order, so a slow subscriber never stalls the
// publisher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers of its type
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LineEvent:
		event.Publish(b.dispatcher, e)
	case ProgressEvent:
		event.Publish(b.dispatcher, e)
	case CompletionEvent:
		event.Publish(b.dispatcher, e)
	case StateEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns the
// unsubscribe func. Unknown handler types get a no-op.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(LineEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProgressEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CompletionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StateEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges a typed subscription to a channel. Events are
// dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- Event) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// Close stops all subscriber goroutines
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}
