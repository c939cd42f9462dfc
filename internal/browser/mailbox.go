package browser

import "sync"

// mailbox delivers events to one subscriber in order. put never blocks and
// never drops: a slow subscriber only grows the queue. Consecutive byte
// progress events of the same download are merged into the latest one.
type mailbox struct {
	out chan Event

	mu    sync.Mutex
	queue []Event

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newMailbox() *mailbox {
	m := &mailbox{
		out:  make(chan Event),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) put(e Event) {
	m.mu.Lock()
	if n := len(m.queue); n > 0 {
		last, lastIsBytes := m.queue[n-1].(DownloadBytesReceivedChanged)
		cur, curIsBytes := e.(DownloadBytesReceivedChanged)
		if lastIsBytes && curIsBytes && last.OperationID == cur.OperationID {
			m.queue[n-1] = cur
			m.mu.Unlock()
			return
		}
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// pending returns the number of queued events.
func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// close stops delivery. Queued events are discarded and out is closed.
func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox) run() {
	defer close(m.out)

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		next := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- next:
		case <-m.done:
			return
		}
	}
}
