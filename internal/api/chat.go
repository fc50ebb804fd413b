package api

import (
	"bufio"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/relay"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/stream"
)

// ChatHandler handles chat turns end-to-end: access and budget checks,
// dispatch, and either an SSE stream or a buffered JSON reply.
type ChatHandler struct {
	reqSvc   *request.BaseService
	respSvc  *response.BaseService
	relaySvc *relay.Service
}

func NewChatHandler(reqSvc *request.BaseService, respSvc *response.BaseService, relaySvc *relay.Service) *ChatHandler {
	return &ChatHandler{reqSvc: reqSvc, respSvc: respSvc, relaySvc: relaySvc}
}

func (h *ChatHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/chat", h.Chat)
	router.Post("/chat/compare", h.Compare)
}

// Chat processes one conversational turn. Streaming is the default and
// follows the user's preference; the request body can override it either
// way.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	user := auth.CurrentUser(c)

	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	fiberlog.Infof("[%s] chat turn from user %d (session %d)", reqID, user.ID, req.SessionID)

	turn, err := h.relaySvc.Prepare(c.UserContext(), reqID, user, req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	wantStream := user.EnableStreaming
	if req.Stream != nil {
		wantStream = *req.Stream
	}
	if !wantStream {
		resp, err := turn.Complete(c.UserContext())
		if err != nil {
			return h.respSvc.AppError(c, err)
		}
		return h.respSvc.Success(c, resp)
	}

	fasthttpCtx := c.Context()
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	fasthttpCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		connState := stream.NewFastHTTPConnectionState(fasthttpCtx)
		sse := stream.NewSSEWriter(w, connState, reqID)

		if err := turn.Run(fasthttpCtx, sse.Emit); err != nil {
			if stream.IsClientDisconnect(err) {
				fiberlog.Infof("[%s] client disconnected mid-stream", reqID)
			} else {
				fiberlog.Errorf("[%s] stream error: %v", reqID, err)
			}
		}
	}))

	return nil
}

// Compare fans one message out to several models and returns all replies
// side by side. Always buffered JSON.
func (h *ChatHandler) Compare(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	user := auth.CurrentUser(c)

	var req models.CompareRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	fiberlog.Infof("[%s] compare request from user %d across %d models", reqID, user.ID, len(req.Models))

	resp, err := h.relaySvc.Compare(c.UserContext(), reqID, user, req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, resp)
}
