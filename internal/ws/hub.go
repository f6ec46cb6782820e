package ws

import "sync"

// sendQueueSize bounds how far a subscriber may fall behind before it is
// cut loose.
const sendQueueSize = 32

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans metric events out to dashboard sessions subscribed per tenant.
// All state is owned by the run goroutine; commands arrive over a single
// channel so subscription changes can never corrupt an in-flight delivery,
// and events for one tenant reach a subscriber in publish order. Writes
// happen on a per-session goroutine behind a bounded queue, so one stalled
// connection can never hold up the publisher or the other sessions.
type Hub struct {
	tenants map[string]map[Subscriber]struct{}
	// members mirrors tenants from the session side so a disconnect can
	// drop every interest the session holds.
	members map[Subscriber]map[string]struct{}
	// sessions holds the write queue and writer goroutine per subscriber.
	sessions map[Subscriber]*session

	commands chan command
	stopCh   chan struct{}
	once     sync.Once
}

// session pairs a subscriber with its write queue. The queue is written and
// closed only by the run goroutine; closing it lets the writer drain what
// was already accepted before exiting.
type session struct {
	client Subscriber
	queue  chan []byte
}

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
	cmdUnsubscribeAll
	cmdPublish
)

type command struct {
	kind     commandKind
	tenantID string
	client   Subscriber
	payload  []byte
}

// NewHub creates an initialized Hub and starts its run loop.
func NewHub() *Hub {
	h := &Hub{
		tenants:  make(map[string]map[Subscriber]struct{}),
		members:  make(map[Subscriber]map[string]struct{}),
		sessions: make(map[Subscriber]*session),
		commands: make(chan command),
		stopCh:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case cmd := <-h.commands:
			h.apply(cmd)
		case <-h.stopCh:
			for client, s := range h.sessions {
				close(s.queue)
				client.Close()
			}
			return
		}
	}
}

func (h *Hub) apply(cmd command) {
	switch cmd.kind {
	case cmdSubscribe:
		if _, ok := h.tenants[cmd.tenantID]; !ok {
			h.tenants[cmd.tenantID] = make(map[Subscriber]struct{})
		}
		h.tenants[cmd.tenantID][cmd.client] = struct{}{}
		if _, ok := h.members[cmd.client]; !ok {
			h.members[cmd.client] = make(map[string]struct{})
		}
		h.members[cmd.client][cmd.tenantID] = struct{}{}
		if _, ok := h.sessions[cmd.client]; !ok {
			s := &session{
				client: cmd.client,
				queue:  make(chan []byte, sendQueueSize),
			}
			h.sessions[cmd.client] = s
			go h.writeLoop(s)
		}
	case cmdUnsubscribe:
		h.drop(cmd.tenantID, cmd.client)
	case cmdUnsubscribeAll:
		for tenantID := range h.members[cmd.client] {
			h.drop(tenantID, cmd.client)
		}
	case cmdPublish:
		clients, ok := h.tenants[cmd.tenantID]
		if !ok {
			return
		}
		for client := range clients {
			s, ok := h.sessions[client]
			if !ok {
				continue
			}
			select {
			case s.queue <- cmd.payload:
			default:
				// Queue full means the session stopped draining. Cut
				// it loose without disturbing the rest.
				client.Close()
				h.dropAll(client)
			}
		}
	}
}

// writeLoop drains one session's queue. A failed write reports the session
// back to the run goroutine for teardown.
func (h *Hub) writeLoop(s *session) {
	for payload := range s.queue {
		if err := s.client.Send(payload); err != nil {
			s.client.Close()
			h.send(command{kind: cmdUnsubscribeAll, client: s.client})
			return
		}
	}
}

func (h *Hub) drop(tenantID string, client Subscriber) {
	if clients, ok := h.tenants[tenantID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.tenants, tenantID)
		}
	}
	if interests, ok := h.members[client]; ok {
		delete(interests, tenantID)
		if len(interests) == 0 {
			delete(h.members, client)
			if s, ok := h.sessions[client]; ok {
				close(s.queue)
				delete(h.sessions, client)
			}
		}
	}
}

func (h *Hub) dropAll(client Subscriber) {
	for tenantID := range h.members[client] {
		h.drop(tenantID, client)
	}
}

func (h *Hub) send(cmd command) {
	select {
	case h.commands <- cmd:
	case <-h.stopCh:
	}
}

// Subscribe registers a session's interest in a tenant's event stream.
func (h *Hub) Subscribe(tenantID string, client Subscriber) {
	h.send(command{kind: cmdSubscribe, tenantID: tenantID, client: client})
}

// Unsubscribe removes one interest.
func (h *Hub) Unsubscribe(tenantID string, client Subscriber) {
	h.send(command{kind: cmdUnsubscribe, tenantID: tenantID, client: client})
}

// UnsubscribeAll removes every interest a session holds; called on session
// termination.
func (h *Hub) UnsubscribeAll(client Subscriber) {
	h.send(command{kind: cmdUnsubscribeAll, client: client})
}

// Publish delivers payload to every session subscribed to the tenant.
func (h *Hub) Publish(tenantID string, payload []byte) {
	h.send(command{kind: cmdPublish, tenantID: tenantID, payload: payload})
}

// Close stops the run loop and closes every connected subscriber.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.stopCh)
	})
}
