package lifecycle

import "sync"

// feed fans out newly published active tokens. Each subscriber holds at most
// one pending value; a slow subscriber sees only the latest token.
type feed struct {
	mu   sync.Mutex
	subs map[chan Info]struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[chan Info]struct{})}
}

func (f *feed) subscribe() (<-chan Info, func()) {
	ch := make(chan Info, 1)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

func (f *feed) broadcast(info Info) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs {
		select {
		case ch <- info:
			continue
		default:
		}
		// Latest wins: drop the stale pending value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- info:
		default:
		}
	}
}

func (f *feed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
