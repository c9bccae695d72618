package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type BotService interface {
	PreviewWeatherUpdate(ctx context.Context) string
	GetStats() map[string]interface{}
}

type JobRunner interface {
	ForceRun(name string) error
	GetStatus() map[string]interface{}
}

type Handler struct {
	bot       BotService
	scheduler JobRunner
	logger    *zap.Logger
}

func NewHandler(bot BotService, scheduler JobRunner, logger *zap.Logger) *Handler {
	return &Handler{
		bot:       bot,
		scheduler: scheduler,
		logger:    logger,
	}
}

// GetHealth handles GET /api/v1/health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"bot":       h.bot.GetStats(),
		"scheduler": h.scheduler.GetStatus(),
		"timestamp": time.Now(),
	})
}

// GetPreview handles GET /api/v1/preview
func (h *Handler) GetPreview(c *fiber.Ctx) error {
	h.logger.Info("Rendering weather update preview")

	text := h.bot.PreviewWeatherUpdate(c.Context())

	return c.JSON(fiber.Map{
		"text":   text,
		"length": len([]rune(text)),
	})
}

// RunJob handles POST /api/v1/jobs/:job
func (h *Handler) RunJob(c *fiber.Ctx) error {
	job := c.Params("job")

	if err := h.scheduler.ForceRun(job); err != nil {
		h.logger.Warn("Rejected manual job run",
			zap.String("job", job),
			zap.Error(err))

		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job":    job,
		"status": "started",
	})
}

var startTime = time.Now()
