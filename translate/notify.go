package translate

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type event struct {
	progress   Progress
	completion *Completion
}

// notifier delivers events to the caller's callbacks on its own goroutine.
// push never blocks: events queue up in memory until delivered.
type notifier struct {
	onProgress func(Progress)
	onComplete func(Completion)
	log        logrus.FieldLogger

	mu     sync.Mutex
	queue  []event
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newNotifier(onProgress func(Progress), onComplete func(Completion), log logrus.FieldLogger) *notifier {
	n := &notifier{
		onProgress: onProgress,
		onComplete: onComplete,
		log:        log,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *notifier) push(e event) {
	if n.onProgress == nil && n.onComplete == nil {
		return
	}
	n.mu.Lock()
	n.queue = append(n.queue, e)
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// close delivers everything queued so far and stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
	<-n.done
}

func (n *notifier) loop() {
	defer close(n.done)
	for {
		n.mu.Lock()
		q := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, e := range q {
			n.deliver(e)
		}
		if closed {
			return
		}
		if len(q) == 0 {
			<-n.wake
		}
	}
}

func (n *notifier) deliver(e event) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Errorf("progress callback panic: %v", r)
		}
	}()
	if e.completion != nil && n.onComplete != nil {
		n.onComplete(*e.completion)
	}
	if n.onProgress != nil {
		n.onProgress(e.progress)
	}
}
