package packet

import (
	"errors"
	"fmt"

	"github.com/phuhao00/scriptbridge/server/internal/model"
)

// Kind is the leading byte of every frame.
type Kind uint8

const (
	KindHandshake Kind = iota + 1
	KindPlayerUpdate
	KindChatMessage
	KindModPacket
	KindNativeCall
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "Handshake"
	case KindPlayerUpdate:
		return "PlayerUpdate"
	case KindChatMessage:
		return "ChatMessage"
	case KindModPacket:
		return "ModPacket"
	case KindNativeCall:
		return "NativeCall"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

var ErrUnknownKind = errors.New("packet: unknown kind")

// Packet is a message that can travel on the wire.
type Packet interface {
	Kind() Kind
	Encode(w *Writer)
	Decode(r *Reader)
}

// Handshake is the first packet a client sends.
type Handshake struct {
	Username   string
	ModVersion string
}

func (*Handshake) Kind() Kind { return KindHandshake }

func (p *Handshake) Encode(w *Writer) {
	w.PutString(p.Username)
	w.PutString(p.ModVersion)
}

func (p *Handshake) Decode(r *Reader) {
	p.Username = r.String()
	p.ModVersion = r.String()
}

// PlayerUpdate is the periodic state sync sent by a client.
type PlayerUpdate struct {
	Position model.Vector3
	Health   int32
}

func (*PlayerUpdate) Kind() Kind { return KindPlayerUpdate }

func (p *PlayerUpdate) Encode(w *Writer) {
	putVector(w, p.Position)
	w.PutUint32(uint32(p.Health))
}

func (p *PlayerUpdate) Decode(r *Reader) {
	p.Position = readVector(r)
	p.Health = int32(r.Uint32())
}

// ChatMessage travels in both directions. Username is filled by the server
// when relaying.
type ChatMessage struct {
	Username string
	Message  string
}

func (*ChatMessage) Kind() Kind { return KindChatMessage }

func (p *ChatMessage) Encode(w *Writer) {
	w.PutString(p.Username)
	w.PutString(p.Message)
}

func (p *ChatMessage) Decode(r *Reader) {
	p.Username = r.String()
	p.Message = r.String()
}

// ModPacket is an opaque, mod-namespaced payload. A zero Target means every
// connection; a zero Sender means the server.
type ModPacket struct {
	Sender   uint64
	Target   uint64
	ModName  string
	CustomID byte
	Payload  []byte
}

func (*ModPacket) Kind() Kind { return KindModPacket }

func (p *ModPacket) Encode(w *Writer) {
	w.PutUint64(p.Sender)
	w.PutUint64(p.Target)
	w.PutString(p.ModName)
	w.PutUint8(p.CustomID)
	w.PutBytes(p.Payload)
}

func (p *ModPacket) Decode(r *Reader) {
	p.Sender = r.Uint64()
	p.Target = r.Uint64()
	p.ModName = r.String()
	p.CustomID = r.Uint8()
	p.Payload = r.Bytes()
}

// NativeCall asks clients to invoke a game-native function by hash.
type NativeCall struct {
	Hash uint64
	Args []NativeArg
}

func (*NativeCall) Kind() Kind { return KindNativeCall }

func (p *NativeCall) Encode(w *Writer) {
	w.PutUint64(p.Hash)
	w.PutUint8(uint8(len(p.Args)))
	for _, a := range p.Args {
		a.encode(w)
	}
}

func (p *NativeCall) Decode(r *Reader) {
	p.Hash = r.Uint64()
	n := int(r.Uint8())
	p.Args = make([]NativeArg, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		var a NativeArg
		a.decode(r)
		p.Args = append(p.Args, a)
	}
}

// Marshal encodes p with its kind byte.
func Marshal(p Packet) []byte {
	w := NewWriter()
	w.PutUint8(uint8(p.Kind()))
	p.Encode(w)
	return w.Bytes()
}

// Unmarshal decodes a frame produced by Marshal.
func Unmarshal(data []byte) (Packet, error) {
	r := NewReader(data)
	kind := Kind(r.Uint8())
	if r.Err() != nil {
		return nil, r.Err()
	}
	p := New(kind)
	if p == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
	p.Decode(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return p, nil
}

// New returns an empty packet for kind, or nil if the kind is unknown.
func New(kind Kind) Packet {
	switch kind {
	case KindHandshake:
		return &Handshake{}
	case KindPlayerUpdate:
		return &PlayerUpdate{}
	case KindChatMessage:
		return &ChatMessage{}
	case KindModPacket:
		return &ModPacket{}
	case KindNativeCall:
		return &NativeCall{}
	default:
		return nil
	}
}

func putVector(w *Writer, v model.Vector3) {
	w.PutFloat32(v.X)
	w.PutFloat32(v.Y)
	w.PutFloat32(v.Z)
}

func readVector(r *Reader) model.Vector3 {
	return model.Vector3{X: r.Float32(), Y: r.Float32(), Z: r.Float32()}
}
