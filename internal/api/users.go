package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/registry"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/usagelog"
	"github.com/mfcastro/aihub/internal/services/users"
)

// UserHandler covers the authenticated user's own account surface: login,
// profile, preferences, visible models, and usage history.
type UserHandler struct {
	reqSvc   *request.BaseService
	respSvc  *response.BaseService
	authSvc  *auth.Service
	userSvc  *users.Service
	usageSvc *usagelog.Service
	registry *registry.Registry
}

func NewUserHandler(
	reqSvc *request.BaseService,
	respSvc *response.BaseService,
	authSvc *auth.Service,
	userSvc *users.Service,
	usageSvc *usagelog.Service,
	reg *registry.Registry,
) *UserHandler {
	return &UserHandler{
		reqSvc:   reqSvc,
		respSvc:  respSvc,
		authSvc:  authSvc,
		userSvc:  userSvc,
		usageSvc: usageSvc,
		registry: reg,
	}
}

// RegisterPublicRoutes mounts the routes that must work without a token.
func (h *UserHandler) RegisterPublicRoutes(router fiber.Router) {
	router.Post("/auth/register", h.Register)
	router.Post("/auth/login", h.Login)
}

func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/me", h.Me)
	router.Put("/me/preferences", h.UpdatePreferences)
	router.Get("/models", h.Models)

	usage := router.Group("/usage")
	usage.Get("/recent", h.RecentUsage)
	usage.Get("/stats", h.UsageStats)
	usage.Get("/by-provider", h.UsageByProvider)
	usage.Get("/by-day", h.UsageByDay)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a basic-role account and returns a token for it.
// Role, budget, and providers are not client-settable here; an admin
// promotes accounts afterwards.
func (h *UserHandler) Register(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	user, err := h.userSvc.Create(c.UserContext(), models.UserCreateRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.RoleBasic,
	})
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	token, err := h.authSvc.IssueToken(user.ID)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] registered user %d (%s)", reqID, user.ID, user.Username)
	return h.respSvc.Created(c, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *UserHandler) Login(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}
	if req.Username == "" || req.Password == "" {
		return h.respSvc.AppError(c, models.NewValidationError("username and password are required", nil))
	}

	token, user, err := h.authSvc.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		fiberlog.Warnf("[%s] failed login attempt for %q", reqID, req.Username)
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] user %d logged in", reqID, user.ID)
	return h.respSvc.Success(c, fiber.Map{
		"token": token,
		"user":  user,
	})
}

func (h *UserHandler) Me(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	return h.respSvc.Success(c, fiber.Map{
		"user":             user,
		"budget_remaining": user.BudgetRemaining(),
	})
}

func (h *UserHandler) UpdatePreferences(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)

	var req models.PreferencesUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	updated, err := h.userSvc.UpdatePreferences(c.UserContext(), user.ID, req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, updated)
}

// Models lists the catalog entries the current user is allowed to use.
func (h *UserHandler) Models(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	return h.respSvc.Success(c, fiber.Map{"models": h.registry.ModelsFor(user)})
}

func (h *UserHandler) RecentUsage(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	logs, err := h.usageSvc.GetRecent(c.UserContext(), user.ID, limit)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"usage": logs})
}

func (h *UserHandler) UsageStats(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)

	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	stats, err := h.usageSvc.Stats(c.UserContext(), user.ID, startTime, endTime)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, stats)
}

func (h *UserHandler) UsageByProvider(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)

	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	stats, err := h.usageSvc.ByProvider(c.UserContext(), user.ID, startTime, endTime)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"providers": stats})
}

func (h *UserHandler) UsageByDay(c *fiber.Ctx) error {
	user := auth.CurrentUser(c)
	days, _ := strconv.Atoi(c.Query("days", "30"))

	stats, err := h.usageSvc.ByDay(c.UserContext(), user.ID, days)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"days": stats})
}

func parseTimeRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	var startTime, endTime time.Time
	var err error

	if raw := c.Query("start"); raw != "" {
		startTime, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, models.NewValidationError("invalid start time format", err)
		}
	}
	if raw := c.Query("end"); raw != "" {
		endTime, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, models.NewValidationError("invalid end time format", err)
		}
	}
	return startTime, endTime, nil
}
