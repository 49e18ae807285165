package runner

import "sync"

// backlogSize bounds both the per-subscriber channel and the replay buffer
// handed to subscribers that join a run already in progress.
const backlogSize = 256

// LogBroker fans out live tool output per run. It is safe for concurrent use.
//
// A subscriber joining mid-run first receives the most recent lines. Closed
// topics are kept as markers so a subscriber arriving after the run finished
// gets a closed channel instead of blocking forever.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	subs   map[int]chan string
	nextID int
	recent []string
	closed bool
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

func (b *LogBroker) topic(runID string) *logTopic {
	t, ok := b.topics[runID]
	if !ok {
		t = &logTopic{subs: make(map[int]chan string)}
		b.topics[runID] = t
	}
	return t
}

// Subscribe returns a channel of log lines for runID and an unsubscribe
// function. The channel is already closed if the run has finished.
func (b *LogBroker) Subscribe(runID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	ch := make(chan string, backlogSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	for _, line := range t.recent {
		ch <- line
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends line to every subscriber of runID, skipping subscribers
// whose buffers are full.
func (b *LogBroker) Publish(runID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	if t.closed {
		return
	}

	if len(t.recent) == backlogSize {
		t.recent = append(t.recent[:0], t.recent[1:]...)
	}
	t.recent = append(t.recent, line)

	for _, ch := range t.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close ends the stream for runID, closing every subscriber channel.
func (b *LogBroker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(runID)
	t.closed = true
	t.recent = nil
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
