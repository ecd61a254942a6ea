package cli

import (
	"fmt"
	"io"
	"time"
)

const waitMessageInterval = 5 * time.Second

// waitNotifier prints periodic reassurance while a slow engine call is in
// flight. The core has no timeouts of its own; elapsed time is signaled
// qualitatively here instead.
type waitNotifier struct {
	out      io.Writer
	ticker   *time.Ticker
	done     chan struct{}
	messages []string
	index    int
	stopped  bool
}

func newWaitNotifier(out io.Writer) *waitNotifier {
	return &waitNotifier{
		out:  out,
		done: make(chan struct{}),
		messages: []string{
			"still working...",
			"the engine is thinking, hang on...",
			"this can take a while on long interviews...",
			"almost there...",
		},
	}
}

func (n *waitNotifier) Start() {
	n.ticker = time.NewTicker(waitMessageInterval)

	go func() {
		for {
			select {
			case <-n.ticker.C:
				fmt.Fprintln(n.out, n.messages[n.index%len(n.messages)])
				n.index++
			case <-n.done:
				return
			}
		}
	}()
}

func (n *waitNotifier) Stop() {
	if n.stopped {
		return
	}
	n.stopped = true

	if n.ticker != nil {
		n.ticker.Stop()
	}
	close(n.done)
}
