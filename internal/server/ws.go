package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/franckalain/eatproof/internal/models"
	"github.com/franckalain/eatproof/internal/scoring"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, this should be more restrictive
	},
}

// wsClient holds per-connection state for the live scan channel. The user is
// resolved once at connect time from the token query parameter.
type wsClient struct {
	conn *websocket.Conn
	user *models.User
}

// handleWebSocket runs the live scan channel the camera flow uses: the
// client streams `scan` messages and receives `scan_result` replies without
// re-establishing an HTTP round trip per frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		user, err := s.db.UserByToken(r.Context(), token)
		if err != nil {
			s.log.Warn("websocket token lookup failed", zap.Error(err))
		}
		client.user = user
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read failed", zap.Error(err))
			}
			break
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendWSError(client, "invalid message format")
			continue
		}

		s.handleWebSocketMessage(r, client, msg.Type, msg.Data)
	}
}

func (s *Server) handleWebSocketMessage(r *http.Request, client *wsClient, messageType string, data json.RawMessage) {
	switch messageType {
	case "scan":
		s.handleWSScan(r, client, data)
	case "get_history":
		s.handleWSHistory(r, client)
	default:
		s.sendWSError(client, "unknown message type")
	}
}

func (s *Server) handleWSScan(r *http.Request, client *wsClient, data json.RawMessage) {
	var req models.ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWSError(client, "invalid scan payload")
		return
	}

	resp, err := s.scorer.Analyze(r.Context(), &req)
	if err != nil {
		s.sendWSError(client, err.Error())
		return
	}

	if client.user != nil {
		s.crossReferenceAllergens(r, client.user, resp)
		if err := s.db.SaveScan(r.Context(), client.user.ID, resp); err != nil {
			s.log.Error("failed to persist websocket scan",
				zap.String("scan_id", resp.ID),
				zap.Error(err))
		}
	}

	s.sendWSMessage(client, "scan_result", resp)
}

func (s *Server) handleWSHistory(r *http.Request, client *wsClient) {
	if client.user == nil {
		s.sendWSError(client, string(scoring.KindUnauthorized))
		return
	}

	scans, err := s.db.RecentScans(r.Context(), client.user.ID, defaultHistoryLimit)
	if err != nil {
		s.log.Error("failed to load websocket history", zap.Error(err))
		s.sendWSError(client, "failed to retrieve history")
		return
	}
	if scans == nil {
		scans = []*models.ScanResponse{}
	}
	s.sendWSMessage(client, "history", scans)
}

func (s *Server) sendWSMessage(client *wsClient, messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}
	if err := client.conn.WriteJSON(msg); err != nil {
		s.log.Warn("failed to send websocket message", zap.Error(err))
	}
}

func (s *Server) sendWSError(client *wsClient, message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}
	if err := client.conn.WriteJSON(msg); err != nil {
		s.log.Warn("failed to send websocket error", zap.Error(err))
	}
}
