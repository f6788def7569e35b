package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ActorIDKey is the fiber locals key under which the auth layer stores the caller id for logging.
const ActorIDKey = "actor_id"

// RequestLogger logs every request and records its metrics.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		route := c.Route().Path

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", duration),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
		}
		if actorID, ok := c.Locals(ActorIDKey).(string); ok && actorID != "" {
			fields = append(fields, zap.String("actor_id", actorID))
		}
		logger.Info("request", fields...)

		metrics.RecordRequest(route, c.Method(), status, duration)
		return err
	}
}
