package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/nodemap/core"
	"github.com/signalsfoundry/nodemap/internal/logging"
	"github.com/signalsfoundry/nodemap/internal/schedule"
	"github.com/signalsfoundry/nodemap/internal/surface"
	"github.com/signalsfoundry/nodemap/internal/viz"
	"github.com/signalsfoundry/nodemap/kb"
	"github.com/signalsfoundry/nodemap/timectrl"
)

const (
	wsReadBuffer   = 1024
	wsWriteBuffer  = 16 * 1024
	wsMessageLimit = 4 * 1024
	wsPingInterval = 30 * time.Second
	wsPongTimeout  = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
	inputBacklog   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBuffer,
	WriteBufferSize: wsWriteBuffer,
}

// ClientMessage is a pointer event sent by the browser. Type is one of
// "move", "down", "up" or "leave"; X and Y are surface coordinates.
type ClientMessage struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// ServerMessage is pushed to the browser. Type is "frame" (SVG holds the
// whole document), "hover", "leave", "rotation" or "error".
type ServerMessage struct {
	Type     string         `json:"type"`
	SVG      string         `json:"svg,omitempty"`
	Version  uint64         `json:"version,omitempty"`
	MarkerID string         `json:"marker_id,omitempty"`
	Tooltip  *viz.Tooltip   `json:"tooltip,omitempty"`
	Rotation *core.Rotation `json:"rotation,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.requestConfig(r, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	sess, err := s.newSession(ctx, conn, cfg)
	if err != nil {
		_ = conn.WriteJSON(ServerMessage{Type: "error", Error: err.Error()})
		_ = conn.Close()
		return
	}
	if err := sess.Run(ctx); err != nil {
		sess.log.Warn(ctx, "session ended with error", logging.Err(err))
	}
}

// Session is one interactive client. Its engine, and every write to the
// connection, is confined to the goroutine running Run.
type Session struct {
	conn    *websocket.Conn
	engine  *viz.Engine
	ticker  *timectrl.FrameTicker
	feed    *kb.Feed
	metrics frameRecorder
	log     logging.Logger

	version uint64
	lastSVG []byte
	outbox  []ServerMessage
}

type frameRecorder interface {
	SessionOpened()
	SessionClosed()
	ObserveFrame(time.Duration)
	SetPendingTasks(int)
}

func (s *Server) newSession(ctx context.Context, conn *websocket.Conn, cfg viz.Config) (*Session, error) {
	ctx, log := logging.WithSessionLogger(ctx, s.log)
	log = log.With(logging.String("remote", conn.RemoteAddr().String()))

	sched := schedule.NewEventScheduler(timectrl.WallClock{})
	engine, err := viz.New(cfg, sched, s.engineOptions(log)...)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		conn:    conn,
		engine:  engine,
		ticker:  timectrl.NewFrameTicker(s.opts.FrameInterval, timectrl.WallClock{}),
		feed:    s.opts.Feed,
		metrics: s.opts.Metrics,
		log:     log,
	}
	sess.metrics.SessionOpened()
	log.Info(ctx, "session opened", logging.String("variant", string(cfg.Variant)))
	return sess, nil
}

// Run pumps pointer input, feed snapshots and animation frames through the
// engine until ctx is done or the client goes away. A normal close returns
// nil.
func (sess *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer sess.close(ctx)

	inputs := make(chan ClientMessage, inputBacklog)
	readErr := make(chan error, 1)
	go sess.readLoop(ctx, inputs, readErr)

	snapshots := make(chan kb.Snapshot, 1)
	unsubscribeFeed := sess.feed.Subscribe(func(snap kb.Snapshot) { offerLatest(snapshots, snap) })
	defer unsubscribeFeed()

	frames := make(chan time.Time, 1)
	sess.ticker.AddListener(func(t time.Time) {
		select {
		case frames <- t:
		default:
		}
	})
	tickerDone := sess.ticker.Start(ctx)
	defer func() { <-tickerDone }()
	defer cancel()

	unsubscribeEvents := sess.engine.Subscribe(sess.queueEvent)
	defer unsubscribeEvents()

	if snap, ok := sess.feed.Snapshot(); ok {
		sess.apply(ctx, snap)
	}
	sess.frame()
	if err := sess.flush(); err != nil {
		return err
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			sess.closeMessage(websocket.CloseGoingAway, "server shutting down")
			return nil
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case msg := <-inputs:
			sess.handleInput(msg)
		case snap := <-snapshots:
			sess.apply(ctx, snap)
		case <-frames:
			sess.frame()
		case <-ping.C:
			if err := sess.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
		if err := sess.flush(); err != nil {
			return err
		}
	}
}

func (sess *Session) readLoop(ctx context.Context, inputs chan<- ClientMessage, readErr chan<- error) {
	sess.conn.SetReadLimit(wsMessageLimit)
	_ = sess.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// The connection is still usable; handleInput reports it.
			msg = ClientMessage{Type: "malformed"}
		}
		select {
		case inputs <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (sess *Session) handleInput(msg ClientMessage) {
	p := core.Point{X: msg.X, Y: msg.Y}
	switch msg.Type {
	case "move":
		sess.engine.PointerMove(p)
	case "down":
		sess.engine.PointerDown(p)
	case "up":
		sess.engine.PointerUp(p)
	case "leave":
		sess.engine.PointerLeave()
	default:
		sess.outbox = append(sess.outbox, ServerMessage{Type: "error", Error: fmt.Sprintf("unsupported message type %q", msg.Type)})
	}
}

// apply hands a snapshot to the engine. Snapshots can arrive out of order
// when publishers race, so older versions are dropped.
func (sess *Session) apply(ctx context.Context, snap kb.Snapshot) {
	if snap.Version <= sess.version {
		return
	}
	sess.version = snap.Version
	if err := sess.engine.Update(ctx, snap.Nodes); err != nil {
		sess.log.Debug(ctx, "snapshot had invalid records",
			logging.Int("version", int(snap.Version)), logging.Err(err))
	}
}

func (sess *Session) frame() {
	start := time.Now()
	sess.engine.Tick()

	var buf bytes.Buffer
	if err := sess.engine.Draw(surface.NewSVG(&buf)); err != nil {
		sess.outbox = append(sess.outbox, ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	sess.metrics.ObserveFrame(time.Since(start))
	sess.metrics.SetPendingTasks(sess.engine.PendingTasks())

	if bytes.Equal(buf.Bytes(), sess.lastSVG) {
		return
	}
	sess.lastSVG = buf.Bytes()
	sess.outbox = append(sess.outbox, ServerMessage{Type: "frame", SVG: buf.String(), Version: sess.version})
}

func (sess *Session) queueEvent(ev viz.Event) {
	switch ev.Kind {
	case viz.EventHoverEnter:
		sess.outbox = append(sess.outbox, ServerMessage{Type: "hover", MarkerID: ev.MarkerID, Tooltip: ev.Tooltip})
	case viz.EventHoverLeave:
		sess.outbox = append(sess.outbox, ServerMessage{Type: "leave", MarkerID: ev.MarkerID})
	case viz.EventRotationChanged:
		r := ev.Rotation
		sess.outbox = append(sess.outbox, ServerMessage{Type: "rotation", Rotation: &r})
	}
}

func (sess *Session) flush() error {
	for len(sess.outbox) > 0 {
		msg := sess.outbox[0]
		sess.outbox = sess.outbox[1:]
		_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := sess.conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	sess.outbox = nil
	return nil
}

func (sess *Session) write(messageType int, data []byte) error {
	_ = sess.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return sess.conn.WriteMessage(messageType, data)
}

func (sess *Session) closeMessage(code int, text string) {
	_ = sess.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

func (sess *Session) close(ctx context.Context) {
	sess.engine.Close()
	_ = sess.conn.Close()
	sess.metrics.SessionClosed()
	sess.log.Info(ctx, "session closed")
}

// offerLatest replaces any undelivered value in ch with v.
func offerLatest(ch chan kb.Snapshot, v kb.Snapshot) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
