package ws

// Subscriber abstracts one receiving end of a job's event stream.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans rebuild events out to the subscribers of each job. Jobs are
// short-lived: Finish closes a job's streams and drops its entry, so a
// completed build never pins connections open.
type Hub struct {
	streams   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan envelope
	finish    chan string
}

// envelope couples a payload with the job it belongs to.
type envelope struct {
	jobID   string
	payload []byte
}

type subscription struct {
	jobID  string
	client Subscriber
}

// NewHub starts the hub's dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		streams:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan envelope),
		finish:    make(chan string),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.streams[sub.jobID]; !ok {
				h.streams[sub.jobID] = make(map[Subscriber]struct{})
			}
			h.streams[sub.jobID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.streams[sub.jobID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.streams, sub.jobID)
				}
			}
		case msg := <-h.broadcast:
			clients, ok := h.streams[msg.jobID]
			if !ok {
				continue
			}
			for c := range clients {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					delete(clients, c)
				}
			}
			if len(clients) == 0 {
				delete(h.streams, msg.jobID)
			}
		case jobID := <-h.finish:
			for c := range h.streams[jobID] {
				c.Close()
			}
			delete(h.streams, jobID)
		}
	}
}

// Register adds a subscriber to a job's stream.
func (h *Hub) Register(jobID string, client Subscriber) {
	h.register <- subscription{jobID: jobID, client: client}
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(jobID string, client Subscriber) {
	h.unreg <- subscription{jobID: jobID, client: client}
}

// Broadcast sends payload to all of a job's subscribers.
func (h *Hub) Broadcast(jobID string, payload []byte) {
	h.broadcast <- envelope{jobID: jobID, payload: payload}
}

// Finish closes every stream of a completed job.
func (h *Hub) Finish(jobID string) {
	h.finish <- jobID
}
