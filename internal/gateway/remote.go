package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// RemoteError is an error response returned by a gateway.
type RemoteError struct {
	Method string
	Shape  ErrorShape
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Shape.Code, e.Shape.Message)
}

// Remote is a client connection to a running gateway.
type Remote struct {
	conn  *websocket.Conn
	hello HelloOK

	writeMu sync.Mutex
	seq     atomic.Int64

	mu      sync.Mutex
	pending map[string]chan Frame
	err     error

	events chan Frame
	done   chan struct{}
}

// Dial connects to the gateway WebSocket at url and completes the connect
// handshake. Snapshots of the agents in subscribe stream from the start.
func Dial(ctx context.Context, url string, auth ConnectAuth, info ClientInfo, subscribe ...string) (*Remote, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}

	hello, err := remoteHandshake(conn, auth, info, subscribe)
	if err != nil {
		conn.Close()
		return nil, err
	}

	r := &Remote{
		conn:    conn,
		hello:   hello,
		pending: make(map[string]chan Frame),
		events:  make(chan Frame, 64),
		done:    make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func remoteHandshake(conn *websocket.Conn, auth ConnectAuth, info ClientInfo, subscribe []string) (HelloOK, error) {
	var challenge Frame
	if err := conn.ReadJSON(&challenge); err != nil {
		return HelloOK{}, fmt.Errorf("reading challenge: %w", err)
	}

	req, err := NewRequest(MethodConnect, MethodConnect, ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client:      info,
		Auth:        &auth,
		Subscribe:   subscribe,
	})
	if err != nil {
		return HelloOK{}, err
	}
	if err := conn.WriteJSON(req); err != nil {
		return HelloOK{}, fmt.Errorf("sending connect: %w", err)
	}

	var res Frame
	if err := conn.ReadJSON(&res); err != nil {
		return HelloOK{}, fmt.Errorf("reading hello: %w", err)
	}
	if !res.Succeeded() {
		shape := ErrorShape{Code: CodeProtocol, Message: "handshake rejected"}
		if res.Error != nil {
			shape = *res.Error
		}
		return HelloOK{}, &RemoteError{Method: MethodConnect, Shape: shape}
	}

	var hello HelloOK
	if err := res.Decode(&hello); err != nil {
		return HelloOK{}, fmt.Errorf("parsing hello: %w", err)
	}
	return hello, nil
}

// Hello returns the server's handshake reply.
func (r *Remote) Hello() HelloOK { return r.hello }

// Events delivers event frames in arrival order. It is closed when the
// connection ends. Responses are not delivered while an event is waiting to
// be received, so subscribers must drain it.
func (r *Remote) Events() <-chan Frame { return r.events }

// Done is closed when the connection ends.
func (r *Remote) Done() <-chan struct{} { return r.done }

// Call sends a request and waits for its response. A successful payload is
// decoded into out when out is non-nil. Error responses are returned as
// *RemoteError.
func (r *Remote) Call(ctx context.Context, method string, params, out any) error {
	id := strconv.FormatInt(r.seq.Add(1), 10)
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan Frame, 1)
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return err
	}
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	r.writeMu.Lock()
	err = r.conn.WriteJSON(req)
	r.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case res := <-ch:
		if !res.Succeeded() {
			shape := ErrorShape{Code: CodeInternal, Message: "request failed"}
			if res.Error != nil {
				shape = *res.Error
			}
			return &RemoteError{Method: method, Shape: shape}
		}
		if out == nil || len(res.Payload) == 0 {
			return nil
		}
		return res.Decode(out)
	case <-r.done:
		return r.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the connection.
func (r *Remote) Close() error {
	r.writeMu.Lock()
	r.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()
	return r.conn.Close()
}

func (r *Remote) closeErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Remote) readLoop() {
	defer close(r.events)
	defer close(r.done)

	for {
		var f Frame
		if err := r.conn.ReadJSON(&f); err != nil {
			r.mu.Lock()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				err = ErrClientClosed
			}
			r.err = fmt.Errorf("gateway connection: %w", err)
			r.mu.Unlock()
			return
		}

		switch f.Type {
		case FrameTypeResponse:
			r.mu.Lock()
			ch, ok := r.pending[f.ID]
			r.mu.Unlock()
			if ok {
				ch <- f
			}
		case FrameTypeEvent:
			r.events <- f
		}
	}
}
