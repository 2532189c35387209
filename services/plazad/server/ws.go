package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/gguuttss/RadixPlaza/services/plazad/stream"
)

const wsWriteTimeout = 10 * time.Second

// handleStream upgrades to a websocket and pushes the pair's events until
// either side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	if s.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "event stream disabled")
		return
	}
	if _, err := s.host.Pair(r.Context(), addr); err != nil {
		s.writeFailure(w, err)
		return
	}

	var opts websocket.AcceptOptions
	if len(s.origins) > 0 {
		opts.OriginPatterns = s.origins
	}
	conn, err := websocket.Accept(w, r, &opts)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.stream.Subscribe(addr.String())
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := pumpStream(ctx, conn, updates); err != nil {
		if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
			return
		}
		s.logger.Warn("pair stream aborted", "pair", addr.String(), "error", err)
		_ = conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func pumpStream(ctx context.Context, conn *websocket.Conn, updates <-chan stream.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeStreamMessage(ctx context.Context, conn *websocket.Conn, msg stream.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
