package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/mfcastro/aihub/internal/models"
	"github.com/mfcastro/aihub/internal/services/auth"
	"github.com/mfcastro/aihub/internal/services/imagegen"
	"github.com/mfcastro/aihub/internal/services/request"
	"github.com/mfcastro/aihub/internal/services/response"
	"github.com/mfcastro/aihub/internal/services/transcribe"
)

// MediaHandler fronts the local media backends: audio transcription and
// image generation. Both are capacity-guarded, so requests may queue or
// be turned away when the backend is saturated.
type MediaHandler struct {
	reqSvc        *request.BaseService
	respSvc       *response.BaseService
	transcribeSvc *transcribe.Service
	imageSvc      *imagegen.Service
}

func NewMediaHandler(
	reqSvc *request.BaseService,
	respSvc *response.BaseService,
	transcribeSvc *transcribe.Service,
	imageSvc *imagegen.Service,
) *MediaHandler {
	return &MediaHandler{
		reqSvc:        reqSvc,
		respSvc:       respSvc,
		transcribeSvc: transcribeSvc,
		imageSvc:      imageSvc,
	}
}

func (h *MediaHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/transcribe", h.Transcribe)
	router.Post("/images/generate", h.GenerateImage)
}

func (h *MediaHandler) Transcribe(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	user := auth.CurrentUser(c)

	if h.transcribeSvc == nil {
		return h.respSvc.AppError(c, models.NewNotFoundError("transcription backend"))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("audio file is required", err))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.respSvc.AppError(c, models.NewInternalError("failed to read uploaded file", err))
	}
	defer file.Close()

	fiberlog.Infof("[%s] user %d transcribing %s (%d bytes)", reqID, user.ID, fileHeader.Filename, fileHeader.Size)

	result, err := h.transcribeSvc.Transcribe(c.UserContext(), fileHeader.Filename, file)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, result)
}

func (h *MediaHandler) GenerateImage(c *fiber.Ctx) error {
	reqID := h.reqSvc.GetRequestID(c)
	user := auth.CurrentUser(c)

	if h.imageSvc == nil {
		return h.respSvc.AppError(c, models.NewNotFoundError("image generation backend"))
	}

	var req imagegen.Request
	if err := c.BodyParser(&req); err != nil {
		return h.respSvc.AppError(c, models.NewValidationError("invalid request body", err))
	}

	fiberlog.Infof("[%s] user %d generating image (size %q, steps %d)", reqID, user.ID, req.Size, req.Steps)

	result, err := h.imageSvc.Generate(c.UserContext(), req)
	if err != nil {
		return h.respSvc.AppError(c, err)
	}
	return h.respSvc.Success(c, result)
}
