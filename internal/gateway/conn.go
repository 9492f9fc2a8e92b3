package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/outreach/internal/broadcast"
	"github.com/soyeahso/outreach/internal/domain"
)

const (
	maxPayload       = 4 * 1024 * 1024
	handshakeTimeout = 10 * time.Second
)

// handshakeError is a rejected connect. The code and message go back to the
// client before the socket closes.
type handshakeError struct {
	code string
	msg  string
	err  error
}

func (e *handshakeError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *handshakeError) Unwrap() error { return e.err }

// handleWebSocket upgrades the request, authenticates the connection and
// serves it until either side closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr
	if !s.limiter.allow(remote) {
		s.log.Warn().Str("remote", remote).Msg("websocket refused: too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("remote", remote).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", remote).Msg("handshake rejected")
		var he *handshakeError
		if errors.As(err, &he) && he.code == CodeUnauthorized {
			s.limiter.recordFailure(remote)
		}
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	client.keepalive()
	s.readLoop(client)
}

// handshake runs challenge, connect and hello. On success the agents named
// in connect.subscribe are already streaming.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventConnectChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	params, proto, err := s.acceptConnect(frame)
	if err != nil {
		var he *handshakeError
		if errors.As(err, &he) {
			reject(conn, frame.ID, he)
		}
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, params.authResult, s.log.Sub("ws"))
	subs := s.subscribeAll(client, params.Subscribe)

	hello := s.hello(proto, client.ConnID)
	for _, sub := range subs {
		hello.Subscribed = append(hello.Subscribed, sub.Topic())
	}
	if err := client.reply(frame.ID, hello, nil); err != nil {
		client.Close()
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	for _, sub := range subs {
		go client.forward(sub, EventAgentSnapshot, s.nextSeq)
	}

	client.log.Info().
		Str("client", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("auth", params.authResult.Method).
		Int("protocol", proto).
		Strs("subscribed", hello.Subscribed).
		Msg("client authenticated")
	return client, nil
}

type acceptedConnect struct {
	ConnectParams
	authResult AuthResult
}

// acceptConnect validates the first client frame and its credentials.
func (s *Server) acceptConnect(frame Frame) (acceptedConnect, int, error) {
	var out acceptedConnect
	if frame.Type != FrameTypeRequest || frame.Method != MethodConnect {
		return out, 0, &handshakeError{
			code: CodeProtocol,
			msg:  fmt.Sprintf("expected connect request, got %s %s", frame.Type, frame.Method),
		}
	}
	if err := json.Unmarshal(frame.Params, &out.ConnectParams); err != nil {
		return out, 0, &handshakeError{code: CodeInvalidParams, msg: "invalid connect params", err: err}
	}
	proto, err := negotiateProtocol(out.MinProtocol, out.MaxProtocol)
	if err != nil {
		return out, 0, &handshakeError{code: CodeProtocol, msg: err.Error()}
	}
	out.authResult = Authorize(s.auth, out.Auth)
	if !out.authResult.OK {
		return out, 0, &handshakeError{code: CodeUnauthorized, msg: out.authResult.Reason}
	}
	return out, proto, nil
}

// subscribeAll opens a snapshot stream for each known agent id. Unknown
// ids are skipped.
func (s *Server) subscribeAll(client *Client, ids []string) []*broadcast.Subscription {
	var subs []*broadcast.Subscription
	for _, id := range ids {
		if _, err := s.agents.Get(id); err != nil {
			continue
		}
		if sub := s.hub.Subscribe(id); client.track(sub) {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (s *Server) hello(proto int, connID string) HelloOK {
	outcomes := make([]string, len(domain.Outcomes))
	for i, o := range domain.Outcomes {
		outcomes[i] = o.String()
	}
	return HelloOK{
		Protocol: proto,
		Server: ServerInfo{
			Version: s.build.Version,
			Commit:  s.build.Commit,
			ConnID:  connID,
		},
		Features: Features{
			Methods:  s.Methods(),
			Events:   []string{EventConnectChallenge, EventAgentSnapshot},
			Outcomes: outcomes,
			Store:    s.store != nil,
		},
		Policy: ServerPolicy{
			MaxPayload:          maxPayload,
			SubscriberBuffer:    s.cfg.Campaign.SubscriberBuffer,
			MinDelaySeconds:     domain.MinDelaySeconds,
			MaxDelaySeconds:     domain.MaxDelaySeconds,
			DefaultDelaySeconds: s.cfg.Campaign.DefaultDelaySeconds,
			MaxWaitMs:           maxWaitTimeout.Milliseconds(),
		},
	}
}

// reject answers a failed connect and starts the close handshake.
func reject(conn *websocket.Conn, reqID string, he *handshakeError) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: he.code, Message: he.msg}))
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, he.code),
		time.Now().Add(writeWait))
}

// readLoop serves request frames until the connection fails or closes.
func (s *Server) readLoop(client *Client) {
	for {
		frame, err := client.readFrame()
		var bad errBadFrame
		switch {
		case errors.As(err, &bad):
			client.Send(NewErrorResponse("", ErrorShape{Code: CodeInvalidParams, Message: bad.Error()}))
			continue
		case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
			client.log.Debug().Msg("client closed connection")
			return
		case err != nil:
			client.log.Warn().Err(err).Msg("read failed")
			return
		}

		if frame.Type != FrameTypeRequest {
			client.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(client, frame)
	}
}

// dispatch runs the handler for frame and writes its reply. After-reply
// work runs only if the reply was sent.
func (s *Server) dispatch(client *Client, frame Frame) {
	r, ok := s.handlers[frame.Method]
	if !ok {
		client.reply(frame.ID, nil, &rpcError{ErrorShape{
			Code:    CodeMethodNotFound,
			Message: "unknown method: " + frame.Method,
		}})
		return
	}

	serve := func() {
		rc := &RequestContext{Client: client, Frame: frame}
		result, err := r.fn(rc)
		if err := client.reply(frame.ID, result, err); err != nil {
			client.log.Debug().Err(err).Str("method", frame.Method).Msg("reply not sent")
			return
		}
		for _, fn := range rc.after {
			fn()
		}
	}
	if r.async {
		go serve()
		return
	}
	serve()
}
