package link

import "sync"

type frame struct {
	data   []byte
	motion bool
}

// outbox is the unsent frame queue of one channel. At most one motion
// frame is ever pending: a newer Move or Stop removes the older one and
// goes to the back. Everything else is FIFO.
type outbox struct {
	mu     sync.Mutex
	frames []frame
	ready  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{ready: make(chan struct{}, 1)}
}

// push queues f and wakes the writer. It reports whether an older motion
// frame was replaced.
func (o *outbox) push(f frame) bool {
	o.mu.Lock()
	replaced := false
	if f.motion {
		for i := range o.frames {
			if o.frames[i].motion {
				o.frames = append(o.frames[:i], o.frames[i+1:]...)
				replaced = true
				break
			}
		}
	}
	o.frames = append(o.frames, f)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return replaced
}

func (o *outbox) pop() (frame, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return frame{}, false
	}
	f := o.frames[0]
	o.frames[0] = frame{}
	o.frames = o.frames[1:]
	return f, true
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}
