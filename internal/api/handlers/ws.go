package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/earningsedge/internal/env"
)

const (
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StepMessage is one simulator step pushed over the episode stream
type StepMessage struct {
	Type     string       `json:"type"` // "step"
	Step     int          `json:"step"`
	Action   int          `json:"action"`
	Reward   float64      `json:"reward"`
	Done     bool         `json:"done"`
	Info     env.StepInfo `json:"info"`
	InWindow bool         `json:"in_earnings_window"` // row that weighted this step's penalty
}

// EpisodeMessage closes the stream with the episode record or an error
type EpisodeMessage struct {
	Type   string      `json:"type"` // "episode" or "error"
	Record interface{} `json:"record,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// StreamEpisode runs one episode and pushes every step as it happens
// GET /api/ws/episode?policy=&seed=&symbol=&episode_len=
func (h *SimulateHandler) StreamEpisode(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	record, err := h.runEpisode(req, func(step, action int, res env.StepResult) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		return writeMessage(conn, StepMessage{
			Type:     "step",
			Step:     step,
			Action:   action,
			Reward:   res.Reward,
			Done:     res.Terminated,
			Info:     res.Info,
			InWindow: res.Info.EarningsWindow,
		})
	})
	if err != nil {
		h.logger.WithError(err).WithField("policy", req.Policy).Warn("Episode stream failed")
		_ = writeMessage(conn, EpisodeMessage{Type: "error", Error: err.Error()})
	} else {
		_ = writeMessage(conn, EpisodeMessage{Type: "episode", Record: record})
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeMessage(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
