package server

import (
	"net/http"
	"time"

	log "github.com/echocat/slf4g"
	"github.com/gorilla/websocket"

	"github.com/ayusman/pinchvol/internal/app"
)

const (
	writeWait  = 2 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// LevelsHandler streams every status snapshot of the loop as a JSON text
// message. A client that reads too slowly misses snapshots.
type LevelsHandler struct {
	monitor *app.Monitor
}

func NewLevelsHandler(monitor *app.Monitor) *LevelsHandler {
	return &LevelsHandler{monitor: monitor}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *LevelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("Websocket upgrade failed.")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	updates, unsubscribe := h.monitor.Subscribe(16)
	defer unsubscribe()

	closed := make(chan struct{})
	go h.drain(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case status, ok := <-updates:
			if !ok {
				closeNormal(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(status); err != nil {
				log.WithError(err).Debug("Websocket client gone.")
				return
			}
			if status.State == app.StateTerminated {
				closeNormal(conn)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "terminated"),
		time.Now().Add(writeWait))
}

// drain reads until the client goes away; clients never send anything
// meaningful but reading is required to process control frames.
func (h *LevelsHandler) drain(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
