package transport

import (
	"sort"
	"sync"

	"github.com/phuhao00/scriptbridge/server/internal/packet"
)

// ConnID is a bare Connection used by in-process transports.
type ConnID uint64

func (c ConnID) ID() uint64 { return uint64(c) }

// Delivery is one Send call captured by Recorder.
type Delivery struct {
	Packet  packet.Packet
	Conns   []uint64
	Method  DeliveryMethod
	Channel Channel
}

// Recorder is an in-memory Transport. It keeps every send so callers can
// inspect what would have gone on the wire.
type Recorder struct {
	mu         sync.Mutex
	conns      map[uint64]Connection
	created    int
	deliveries []Delivery
	flushes    int
	sendErr    error
}

func NewRecorder(ids ...uint64) *Recorder {
	r := &Recorder{conns: make(map[uint64]Connection)}
	for _, id := range ids {
		r.conns[id] = ConnID(id)
	}
	return r
}

func (r *Recorder) AddConnection(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = ConnID(id)
}

func (r *Recorder) RemoveConnection(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// FailSends makes every following Send return err.
func (r *Recorder) FailSends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendErr = err
}

func (r *Recorder) CreateMessage() *Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
	return &Message{}
}

func (r *Recorder) Send(msg *Message, conns []Connection, method DeliveryMethod, channel Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	if msg == nil || len(msg.Payload) == 0 {
		return ErrEmptyMessage
	}
	p, err := packet.Unmarshal(msg.Payload)
	if err != nil {
		return err
	}
	ids := make([]uint64, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID())
	}
	r.deliveries = append(r.deliveries, Delivery{Packet: p, Conns: ids, Method: method, Channel: channel})
	return nil
}

func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func (r *Recorder) Connections() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Deliveries returns a copy of everything sent so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// MessagesCreated counts CreateMessage calls.
func (r *Recorder) MessagesCreated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}
