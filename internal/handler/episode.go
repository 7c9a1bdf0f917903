package handler

import (
	"context"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"

	"github.com/linchuyao6/talk-essence/internal/model"
	"github.com/linchuyao6/talk-essence/internal/resolver"
	"github.com/linchuyao6/talk-essence/internal/worker"
	ws "github.com/linchuyao6/talk-essence/internal/websocket"
)

// EpisodeHandler accepts one processing job per WebSocket connection. The
// first client frame is the ProcessRequest; everything after that is a
// one-way event stream until the terminal event.
type EpisodeHandler struct {
	worker    *worker.EpisodeWorker
	validator *validator.Validate
}

func NewEpisodeHandler(w *worker.EpisodeWorker, v *validator.Validate) *EpisodeHandler {
	return &EpisodeHandler{
		worker:    w,
		validator: v,
	}
}

// Handle runs the full job lifecycle for one connection.
func (h *EpisodeHandler) Handle(c *websocket.Conn) {
	var req model.ProcessRequest
	if err := c.ReadJSON(&req); err != nil {
		c.WriteJSON(model.ErrorEvent("请求格式无效"))
		return
	}

	// reject before any transient state is created
	if err := h.validator.Struct(&req); err != nil {
		c.WriteJSON(model.ErrorEvent("请提供节目链接和 API Key"))
		return
	}
	if !resolver.IsEpisodeURL(req.URL) {
		c.WriteJSON(model.ErrorEvent("仅支持小宇宙播客的节目链接"))
		return
	}

	session := ws.NewSession(c)
	go session.Run()
	go session.ReadLoop()

	log.Printf("Episode job accepted: %s", req.URL)
	h.worker.Process(context.Background(), &req, session)

	// flush queued events (including the terminal one) before the
	// connection is torn down
	session.Close()
}
