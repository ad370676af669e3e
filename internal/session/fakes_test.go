package session

import (
	"context"
	"sync"

	"github.com/gdtech/pairgate/internal/provider"
)

// scriptedProvider replays a fixed event script per connection attempt. An
// attempt with no script keeps its event channel open until cancelled.
type scriptedProvider struct {
	mu      sync.Mutex
	scripts [][]provider.Event
	opens   int
	cancels int
	hints   []string
}

func (p *scriptedProvider) Open(ctx context.Context, identityHint string) (<-chan provider.Event, provider.CancelFunc, error) {
	p.mu.Lock()
	attempt := p.opens
	p.opens++
	p.hints = append(p.hints, identityHint)
	var script []provider.Event
	if attempt < len(p.scripts) {
		script = p.scripts[attempt]
	}
	p.mu.Unlock()

	ch := make(chan provider.Event, len(script)+1)
	for _, ev := range script {
		ch <- ev
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			p.cancels++
			p.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (p *scriptedProvider) openCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func (p *scriptedProvider) cancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancels
}

type deliverCall struct {
	phoneNumber string
	blob        []byte
}

type recordingSink struct {
	mu    sync.Mutex
	calls []deliverCall
	err   error
}

func (s *recordingSink) Deliver(ctx context.Context, phoneNumber string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, deliverCall{phoneNumber: phoneNumber, blob: blob})
	return s.err
}

func (s *recordingSink) deliveries() []deliverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deliverCall(nil), s.calls...)
}

type recordingSubscriber struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *recordingSubscriber) Subscribe(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, phoneNumber)
	return s.err
}

func (s *recordingSubscriber) subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]StatusEvent
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]StatusEvent)}
}

func (n *recordingNotifier) PublishStatus(ctx context.Context, sessionID string, event StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[sessionID] = append(n.events[sessionID], event)
	return nil
}

func (n *recordingNotifier) published(sessionID string) []StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]StatusEvent(nil), n.events[sessionID]...)
}
