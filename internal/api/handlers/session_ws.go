package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/theblitlabs/sentinel/internal/core/models"
	"github.com/theblitlabs/sentinel/pkg/logger"
)

// WSMessage is the envelope for every websocket frame.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type sessionStatus struct {
	Session *models.Session `json:"session"`
	Rounds  []models.Round  `json:"rounds"`
}

// SessionStatusSocket streams session and round state to the client until the
// session reaches a terminal status or the client disconnects.
func (h *FederationHandler) SessionStatusSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("websocket")

	sessionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	if _, err := h.service.GetSession(r.Context(), sessionID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.wsConfig.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(h.wsConfig.PongWait)); err != nil {
		log.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.wsConfig.PongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Websocket closed unexpectedly")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.wsConfig.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			session, err := h.service.GetSession(r.Context(), sessionID)
			if err != nil {
				h.writeSocket(conn, WSMessage{Type: "error", Payload: "failed to fetch session"})
				continue
			}
			rounds, err := h.service.ListRounds(r.Context(), sessionID)
			if err != nil {
				h.writeSocket(conn, WSMessage{Type: "error", Payload: "failed to fetch rounds"})
				continue
			}

			msg := WSMessage{Type: "session_status", Payload: sessionStatus{Session: session, Rounds: rounds}}
			if err := h.writeSocket(conn, msg); err != nil {
				log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Failed to write status")
				return
			}

			if session.Status == models.SessionStatusCompleted || session.Status == models.SessionStatusFailed {
				return
			}
		}
	}
}

func (h *FederationHandler) writeSocket(conn *websocket.Conn, msg WSMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(h.wsConfig.WriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
