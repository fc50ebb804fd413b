// Package response renders API responses in a single shape.
package response

import (
	"github.com/mfcastro/aihub/internal/models"

	"github.com/gofiber/fiber/v2"
)

type BaseService struct{}

func NewBaseService() *BaseService {
	return &BaseService{}
}

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error sends an error response with specified status, type, and code
func (s *BaseService) Error(c *fiber.Ctx, status int, message, errorType, code string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	})
}

// AppError renders a structured application error, sanitized of internal
// detail.
func (s *BaseService) AppError(c *fiber.Ctx, err error) error {
	appErr := models.SanitizeError(err)
	return s.Error(c, appErr.GetStatusCode(), appErr.Message, string(appErr.Type), appErr.Code)
}

// Success sends a 200 OK response with the provided data
func (s *BaseService) Success(c *fiber.Ctx, data any) error {
	return c.JSON(data)
}

// Created sends a 201 response with the provided data.
func (s *BaseService) Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}
