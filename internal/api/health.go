package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mfcastro/aihub/internal/services/database"
)

// HealthHandler reports service liveness and the state of its
// dependencies.
type HealthHandler struct {
	db          *database.DB
	redisClient *redis.Client
	ollamaURL   string
	providers   []string
	httpClient  *http.Client
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client, ollamaURL string, providers []string) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		ollamaURL:   strings.TrimSuffix(ollamaURL, "/"),
		providers:   providers,
		httpClient:  &http.Client{Timeout: 2 * time.Second},
	}
}

func (h *HealthHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
}

func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	checks := fiber.Map{
		"database": h.checkDatabase(),
	}
	if h.redisClient != nil {
		checks["redis"] = h.checkRedis()
	}
	if h.ollamaURL != "" {
		checks["ollama"] = h.checkOllama(c.UserContext())
	}

	status := "healthy"
	statusCode := fiber.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			statusCode = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": h.providers,
		"checks":    checks,
	})
}

func (h *HealthHandler) checkDatabase() string {
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkOllama(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.ollamaURL+"/api/version", nil)
	if err != nil {
		return "unhealthy"
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "unhealthy"
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
