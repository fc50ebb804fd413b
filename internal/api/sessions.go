package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/sessions"
)

// SessionHandler exposes a user's chat history. Every route operates on
// the authenticated user's own sessions only.
type SessionHandler struct {
	reqSvc     *request.BaseService
	respSvc    *response.BaseService
	sessionSvc *sessions.Service
}

func NewSessionHandler(reqSvc *request.BaseService, respSvc *response.BaseService, sessionSvc *sessions.Service) *SessionHandler {
	return &SessionHandler{reqSvc: reqSvc, respSvc: respSvc, sessionSvc: sessionSvc}
}

func (h *SessionHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/sessions")
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Delete("/:id", h.Deactivate)
	group.Get("/:id/export", h.Export)
}

func (h *SessionHandler) List(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)

	summaries, err := h.sessionSvc.List(c.UserContext(), user.ID)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"sessions": summaries})
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	session, err := h.sessionSvc.GetWithMessages(c.UserContext(), user.ID, sessionID)
	if err != nil {
		return h.respSvc.AppError(c, sessionError(err))
	}
	return h.respSvc.Success(c, session)
}

func (h *SessionHandler) Deactivate(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	user := auth.CurrentUser(c)
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	if err := h.sessionSvc.Deactivate(c.UserContext(), user.ID, sessionID); err != nil {
		return h.respSvc.AppError(c, sessionError(err))
	}
	fiberlog.Infof("[%s] user %d deactivated session %d", reqID, user.ID, sessionID)
	return h.respSvc.Success(c, fiber.Map{"deleted": true, "session_id": sessionID})
}

func (h *SessionHandler) Export(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	export, err := h.sessionSvc.Export(c.UserContext(), user.ID, sessionID, user.Username)
	if err != nil {
		return h.respSvc.AppError(c, sessionError(err))
	}
	return h.respSvc.Success(c, export)
}

// sessionError maps the store's not-found sentinel onto the API error
// taxonomy.
func sessionError(err error) error {
	if errors.Is(err, sessions.ErrNotFound) {
		return models.NewNotFoundError("session")
	}
	return err
}

func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, models.NewValidationError("invalid "+name+" parameter", err)
	}
	return uint(id), nil
}
