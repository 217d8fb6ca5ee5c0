// Package handler holds the echo HTTP handlers. Every error response has
// the shape {"error": message} with an optional machine-readable "code".
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/middleware"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/queue"
)

// Error codes clients can branch on.
const (
	CodeSlotFull           = "SLOT_FULL"
	CodeAlreadySignedUp    = "ALREADY_SIGNED_UP"
	CodeSlotStarted        = "SLOT_STARTED"
	CodeCapacityBelowCount = "CAPACITY_BELOW_SIGNUPS"
	CodeInvalidInput       = "INVALID_INPUT"
)

// requestTimeout bounds the database work of a single request.
const requestTimeout = 5 * time.Second

// NotificationPublisher sends meeting notifications to the broker.
type NotificationPublisher interface {
	PublishSlotCancelled(ctx context.Context, ev queue.SlotCancelledEvent) error
	PublishSignupCreated(ctx context.Context, ev queue.SignupCreatedEvent) error
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

func failCode(c echo.Context, status int, msg, code string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// invalidInput answers 400 for validation failures, 500 for anything else.
func invalidInput(c echo.Context, err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": ve.Message, "code": CodeInvalidInput, "field": ve.Field})
	}
	return fail(c, http.StatusInternalServerError, "internal error")
}

// getUserID returns the authenticated user id set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func metricsOrDefault(m *metrics.Manager) *metrics.Manager {
	if m == nil {
		return metrics.Default()
	}
	return m
}

// publishCtx detaches notification publishing from the request so a client
// disconnect does not drop the message.
func publishCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request().Context()), 5*time.Second)
}

func logFor(name string) logger.Logger { return logger.Named(name) }
