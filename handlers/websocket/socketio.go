package websocket

import (
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io-go-parser/packet"
	eiotypes "github.com/zishang520/engine.io-go-parser/types"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-go-parser/v2/parser"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const maxHttpBufferSize = 5000000

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

var inbound = func() map[string]bool {
	set := make(map[string]bool, len(InboundEvents))
	for _, event := range InboundEvents {
		set[event] = true
	}
	return set
}()

// socketConn adapts a Socket.IO socket to Conn.
type socketConn struct {
	socket  *socketio.Socket
	encoder parser.Encoder
}

func (c *socketConn) ID() string {
	return string(c.socket.Id())
}

func (c *socketConn) Emit(event string, payload any) error {
	if payload == nil {
		return c.socket.Emit(event)
	}
	return c.socket.Emit(event, payload)
}

func (c *socketConn) ack(id uint64, payload map[string]any) {
	packets := c.encoder.Encode(&parser.Packet{
		Type: parser.ACK,
		Nsp:  c.socket.Nsp().Name(),
		Id:   &id,
		Data: []any{payload},
	})
	c.socket.Client().WriteToEngine(packets, &socketio.WriteOptions{})
}

// SetupSocketIO builds the Socket.IO server and binds every connection to
// the gateway. Localhost origins are always accepted.
func SetupSocketIO(gateway *Gateway, allowedOrigins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(maxHttpBufferSize)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)

	origins := make([]any, 0, len(allowedOrigins)+1)
	for _, origin := range allowedOrigins {
		origins = append(origins, origin)
	}
	origins = append(origins, localhostOrigin)
	opts.SetCors(&types.Cors{
		Origin:      origins,
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	// Bound in middleware so the listeners are in place before the client
	// is told it has connected.
	srv.Use(func(socket *socketio.Socket, next func(*socketio.ExtendedError)) {
		conn := &socketConn{socket: socket, encoder: srv.Encoder()}
		bind(gateway, conn)
		gateway.Connect(conn)
		next(nil)
	})

	return srv
}

// bind feeds the connection's events to the gateway. The library hands
// each decoded packet to its own goroutine, so events are decoded from the
// engine.io packet stream instead, which arrives in the order the client
// sent it.
func bind(gateway *Gateway, conn *socketConn) {
	engine := conn.socket.Conn()
	nsp := conn.socket.Nsp().Name()
	decoder := parser.NewDecoder()

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	decoder.On("decoded", func(args ...any) {
		p, ok := args[0].(*parser.Packet)
		if !ok || (p.Type != parser.EVENT && p.Type != parser.BINARY_EVENT) {
			return
		}
		if name, _, _ := strings.Cut(p.Nsp, "?"); name != nsp {
			return
		}
		receive(gateway, conn, p)
	})

	// "packet" fires before the library reads the payload, so the data is
	// copied rather than consumed.
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	engine.On("packet", func(args ...any) {
		p, ok := args[0].(*packet.Packet)
		if !ok || p.Type != packet.MESSAGE {
			return
		}
		data, ok := peek(p.Data)
		if !ok {
			return
		}
		if err := decoder.Add(data); err != nil {
			logrus.WithError(err).WithField("conn_id", conn.ID()).Debug("undecodable packet")
		}
	})

	disconnect := func(...any) {
		go gateway.Disconnect(conn.ID())
	}
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	conn.socket.On("disconnect", disconnect)
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	engine.Once("close", disconnect)
}

// peek returns the unread payload without advancing the reader.
func peek(data io.Reader) (any, bool) {
	switch b := data.(type) {
	case *eiotypes.StringBuffer:
		return b.String(), true
	case *eiotypes.BytesBuffer:
		return append([]byte(nil), b.Bytes()...), true
	}
	return nil, false
}

func receive(gateway *Gateway, conn *socketConn, p *parser.Packet) {
	data, ok := p.Data.([]any)
	if !ok || len(data) == 0 {
		return
	}
	event, ok := data[0].(string)
	if !ok || !inbound[event] {
		return
	}

	var done func(error)
	if p.Id != nil {
		id := *p.Id
		done = func(err error) {
			conn.ack(id, ackPayload(err))
		}
	}

	if err := gateway.Submit(conn.ID(), event, data[1:], done); err != nil && done != nil {
		done(err)
	}
}
