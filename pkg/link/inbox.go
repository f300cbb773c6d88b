package link

import "sync"

// inbox retains the most recent inbound frames, oldest evicted first.
type inbox struct {
	mu    sync.Mutex
	buf   []Inbound
	start int
	n     int
}

func newInbox(size int) *inbox {
	return &inbox{buf: make([]Inbound, size)}
}

func (b *inbox) add(m Inbound) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n < len(b.buf) {
		b.buf[(b.start+b.n)%len(b.buf)] = m
		b.n++
		return
	}
	b.buf[b.start] = m
	b.start = (b.start + 1) % len(b.buf)
}

// snapshot returns the retained frames, oldest first.
func (b *inbox) snapshot() []Inbound {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Inbound, b.n)
	for i := 0; i < b.n; i++ {
		out[i] = b.buf[(b.start+i)%len(b.buf)]
	}
	return out
}
