package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/ledger"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/usagelog"
	"github.com/mfcastro/aihub/internal/services/users"
)

// AdminHandler covers user administration: account CRUD, budget
// management, and the hub-wide usage overview. Mounted behind
// auth.RequireAdmin.
type AdminHandler struct {
	reqSvc    *request.BaseService
	respSvc   *response.BaseService
	userSvc   *users.Service
	ledgerSvc *ledger.Service
	usageSvc  *usagelog.Service
}

func NewAdminHandler(
	reqSvc *request.BaseService,
	respSvc *response.BaseService,
	userSvc *users.Service,
	ledgerSvc *ledger.Service,
	usageSvc *usagelog.Service,
) *AdminHandler {
	return &AdminHandler{
		reqSvc:    reqSvc,
		respSvc:   respSvc,
		userSvc:   userSvc,
		ledgerSvc: ledgerSvc,
		usageSvc:  usageSvc,
	}
}

func (h *AdminHandler) RegisterRoutes(router fiber.Router) {
	group := router.Group("/admin", auth.RequireAdmin())
	group.Get("/users", h.ListUsers)
	group.Post("/users", h.CreateUser)
	group.Get("/users/:id", h.GetUser)
	group.Put("/users/:id", h.UpdateUser)
	group.Put("/users/:id/budget", h.SetBudget)
	group.Post("/users/:id/budget/reset", h.ResetBudget)
	group.Post("/budgets/reset", h.ResetAllBudgets)
	group.Get("/usage", h.UsageOverview)
}

// UsageOverview rolls usage up per user across the hub.
func (h *AdminHandler) UsageOverview(c *fiber.Ctx) error {
	startTime, endTime, err := parseTimeRange(c)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	stats, err := h.usageSvc.ByUser(c.UserContext(), startTime, endTime)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"users": stats})
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	list, err := h.userSvc.List(c.UserContext())
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, fiber.Map{"users": list})
}

func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	var req models.UserCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	user, err := h.userSvc.Create(c.UserContext(), req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] admin created user %d (%s, role %s)", reqID, user.ID, user.Username, user.Role)
	return h.respSvc.Created(c, user)
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	user, err := h.userSvc.Get(c.UserContext(), userID)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, user)
}

func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	var req models.UserUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	user, err := h.userSvc.Update(c.UserContext(), userID, req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] admin updated user %d", reqID, userID)
	return h.respSvc.Success(c, user)
}

type setBudgetRequest struct {
	MonthlyBudget float64 `json:"monthly_budget"`
}

// SetBudget assigns a user's monthly budget, clamped to the ceiling for
// their role.
func (h *AdminHandler) SetBudget(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	var req setBudgetRequest
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}
	if req.MonthlyBudget < 0 {
		return h.respSvc.AppError(c, models.NewValidationError("monthly_budget must not be negative", nil))
	}

	if err := h.ledgerSvc.SetBudget(c.UserContext(), userID, req.MonthlyBudget); err != nil {
		return h.respSvc.AppError(c, err)
	}

	user, err := h.userSvc.Get(c.UserContext(), userID)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] admin set budget for user %d to %.2f", reqID, userID, user.MonthlyBudget)
	return h.respSvc.Success(c, user)
}

// ResetBudget zeroes one user's current period usage.
func (h *AdminHandler) ResetBudget(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	if err := h.ledgerSvc.ResetPeriod(c.UserContext(), userID); err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] admin reset usage period for user %d", reqID, userID)
	return h.respSvc.Success(c, fiber.Map{"reset": true, "user_id": userID})
}

// ResetAllBudgets zeroes every active user's current period usage, the
// same operation the monthly scheduler performs.
func (h *AdminHandler) ResetAllBudgets(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)

	affected, err := h.ledgerSvc.ResetAllPeriods(c.UserContext())
	if err != nil {
		return h.respSvc.AppError(c, err)
	}

	fiberlog.Infof("[%s] admin reset usage periods for %d users", reqID, affected)
	return h.respSvc.Success(c, fiber.Map{"reset": true, "users_affected": affected})
}
