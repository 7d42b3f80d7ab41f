// Package progress is the one-direction notification channel the pipelines
// write human-readable status strings into. Consumers (the worker's logger,
// or an SSE bridge) drain the channel; the core never assumes a synchronous
// callback and never blocks on a slow consumer.
package progress

import "log"

// Notifier accepts progress messages. The zero value discards them.
type Notifier struct {
	ch chan string
}

// New returns a notifier buffering up to size messages.
func New(size int) *Notifier {
	return &Notifier{ch: make(chan string, size)}
}

// Publish enqueues a message, dropping it if the buffer is full — progress
// is advisory, pipelines must never stall on it.
func (n *Notifier) Publish(msg string) {
	if n == nil || n.ch == nil {
		return
	}
	select {
	case n.ch <- msg:
	default:
		log.Printf("[Progress] dropped (consumer behind): %s", msg)
	}
}

// Messages exposes the receive side for a consumer.
func (n *Notifier) Messages() <-chan string {
	if n == nil {
		return nil
	}
	return n.ch
}

// Close ends the stream. Publish after Close is a programming error.
func (n *Notifier) Close() {
	if n != nil && n.ch != nil {
		close(n.ch)
	}
}
