package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/devdraft-ai/devdraft/internal/session"
	"github.com/devdraft-ai/devdraft/internal/spec"
)

// archiveTimeout bounds the best-effort spec archive after a session ends.
const archiveTimeout = 5 * time.Second

// commandMessage is the shape of inbound text frames.
type commandMessage struct {
	Type string `json:"type"`
}

// handleWebSocket runs one capture session over a WebSocket connection. Text
// frames carry JSON commands, binary frames carry raw audio; every outbound
// session event is delivered as a JSON text frame in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.NewSession == nil {
		http.Error(w, "capture is not configured", http.StatusServiceUnavailable)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins}
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = []string{"*"}
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sessionID := newSessionID()
	log := slog.With("session_id", sessionID)
	log.Info("capture session opened", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := s.cfg.NewSession()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = ctrl.Run(ctx)
	}()

	// The writer drains Events until the controller closes it, so ordered
	// delivery survives even while the read side is tearing down.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for event := range ctrl.Events() {
			if err := wsjson.Write(ctx, conn, event); err != nil {
				cancel()
			}
		}
	}()

	s.readLoop(ctx, conn, ctrl, log)

	cancel()
	<-runDone
	<-writerDone

	s.archiveSpec(sessionID, ctrl.CurrentSpec(), log)

	conn.Close(websocket.StatusNormalClosure, "")
	log.Info("capture session closed")
}

// readLoop forwards inbound frames to the controller until the connection or
// session ends. Malformed and unknown commands are logged and skipped; the
// connection stays open.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, ctrl *session.Controller, log *slog.Logger) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if err := ctrl.HandleAudio(data); err != nil {
				return
			}
		case websocket.MessageText:
			var msg commandMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Warn("discarding malformed command frame", "error", err)
				continue
			}
			if err := ctrl.HandleCommand(msg.Type); err != nil {
				if errors.Is(err, session.ErrUnknownCommand) {
					log.Warn("ignoring unknown command", "type", msg.Type)
					continue
				}
				return
			}
		}
	}
}

// archiveSpec stores the session's final specification, when there is one.
// Failures are logged and otherwise ignored.
func (s *Server) archiveSpec(sessionID string, sp *spec.ProjectSpec, log *slog.Logger) {
	if s.cfg.Archive == nil || sp == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if _, err := s.cfg.Archive.SaveSpec(ctx, sessionID, sp); err != nil {
		log.Warn("failed to archive session specification", "error", err)
	}
}

// newSessionID returns a random 16-hex-char session identifier.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
