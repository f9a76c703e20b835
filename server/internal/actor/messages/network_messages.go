package messages

import (
	"net"
)

// ClientConnected hands the accepted connection to its SessionActor.
type ClientConnected struct {
	ConnID uint64
	Conn   net.Conn // The raw network connection.
}

// ClientDisconnected tells the SessionActor to flush, close and stop.
type ClientDisconnected struct {
	Reason string
}

// ForwardToClient carries one encoded packet. The SessionActor adds the
// length prefix before writing.
type ForwardToClient struct {
	Payload []byte
}

// FlushClient pushes buffered frames onto the socket.
type FlushClient struct{}
