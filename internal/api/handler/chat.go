package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/api/request"
	"github.com/edvin/kubelease/internal/api/response"
	"github.com/edvin/kubelease/internal/model"
	"github.com/edvin/kubelease/internal/platform"
)

// Bot answers chat input with reply lines.
type Bot interface {
	Handle(ctx context.Context, text string) []string
	Dispatch(ctx context.Context, in model.Intent) []string
}

// Leases is the read side of the lease manager.
type Leases interface {
	List() []model.Cluster
	Now() time.Time
}

type Chat struct {
	bot            Bot
	leases         Leases
	originPatterns []string
}

func NewChat(bot Bot, leases Leases, originPatterns []string) *Chat {
	return &Chat{bot: bot, leases: leases, originPatterns: originPatterns}
}

// Message handles POST /v1/messages.
func (h *Chat) Message(w http.ResponseWriter, r *http.Request) {
	var req request.Message
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	response.WriteReplies(w, h.bot.Handle(r.Context(), req.Text))
}

// Intent handles POST /v1/intents, skipping the chat grammar.
func (h *Chat) Intent(w http.ResponseWriter, r *http.Request) {
	var in model.Intent
	if err := request.Decode(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	response.WriteReplies(w, h.bot.Dispatch(r.Context(), in))
}

type clusterView struct {
	model.Cluster
	IsExpired bool   `json:"expired"`
	Summary   string `json:"summary"`
}

// Clusters handles GET /v1/clusters.
func (h *Chat) Clusters(w http.ResponseWriter, r *http.Request) {
	now := h.leases.Now()
	clusters := h.leases.List()

	views := make([]clusterView, 0, len(clusters))
	for _, c := range clusters {
		views = append(views, clusterView{
			Cluster:   c,
			IsExpired: c.Expired(now),
			Summary:   c.Describe(now),
		})
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"clusters": views})
}

// Connect handles GET /v1/chat. Every text frame is one chat message and
// every reply line goes back as its own text frame.
func (h *Chat) Connect(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context()).With().Str("session_id", platform.NewID()).Logger()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	log.Info().Msg("chat session opened")

	ctx := r.Context()
	for {
		msgType, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("chat session read failed")
			}
			break
		}
		if msgType != websocket.MessageText {
			ws.Close(websocket.StatusUnsupportedData, "text frames only")
			return
		}

		for _, reply := range h.bot.Handle(ctx, string(data)) {
			if err := ws.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				log.Warn().Err(err).Msg("chat session write failed")
				return
			}
		}
	}

	log.Info().Msg("chat session closed")
	ws.Close(websocket.StatusNormalClosure, "")
}
