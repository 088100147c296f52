package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"crepes-svc/mercadopago"
	"crepes-svc/middleware"
	"crepes-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "crepes-service"

func startSpan(c *gin.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(c.Request.Context(), name)
}

// EventPublisher is implemented by kafka.Publisher and kafka.NopPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

type PaymentGateway interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPayment(ctx context.Context, id string) (*mercadopago.Payment, error)
}

type ImageStore interface {
	Save(subdir string, fh *multipart.FileHeader) (string, error)
	Release(url string)
	DefaultImage() string
}

// internalError logs err and answers the generic 500 body.
func internalError(c *gin.Context, logger *zap.Logger, span trace.Span, msg string, err error) {
	span.RecordError(err)
	logger.Error(msg, zap.String("trace_id", middleware.GetTraceID(c.Request.Context())), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func paramID(c *gin.Context, name, what string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + what + " ID"})
		return 0, false
	}
	return id, true
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// publish is best-effort; the request has already succeeded.
func publish(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event models.OrderEvent) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("event_type", event.EventType),
			zap.Int("order_id", event.OrderID),
			zap.Error(err),
		)
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "crepes-service",
		"status":  "healthy",
	})
}
