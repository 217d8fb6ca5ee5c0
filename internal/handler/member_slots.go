package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/queue"
	"github.com/iliyamo/recruiting-portal/internal/repository"
)

// MemberSlotHandler lets members manage the slots they own.
type MemberSlotHandler struct {
	Slots     *repository.SlotRepo
	Signups   *repository.SignupRepo
	Publisher NotificationPublisher // nil disables notifications
	Metrics   *metrics.Manager
	Now       func() time.Time
	// OnChange is called after every successful mutation.
	OnChange func(ctx context.Context)

	log logger.Logger
}

func NewMemberSlotHandler(slots *repository.SlotRepo, signups *repository.SignupRepo) *MemberSlotHandler {
	return &MemberSlotHandler{Slots: slots, Signups: signups, Now: time.Now, log: logFor("member-slots")}
}

func (h *MemberSlotHandler) changed(ctx context.Context, action string) {
	metricsOrDefault(h.Metrics).SlotChanged(action)
	if h.OnChange != nil {
		h.OnChange(ctx)
	}
}

// slotError maps repository failures shared by the owner-scoped routes.
func (h *MemberSlotHandler) slotError(c echo.Context, err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrSlotNotFound):
		return fail(c, http.StatusNotFound, "meeting slot not found")
	case errors.Is(err, repository.ErrSignupNotFound):
		return fail(c, http.StatusNotFound, "signup not found")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "you do not own this meeting slot")
	case errors.Is(err, repository.ErrCapacityBelowSignups):
		return failCode(c, http.StatusConflict, "capacity cannot be lower than the number of signups", CodeCapacityBelowCount)
	}
	h.log.Error(c.Request().Context(), op+" failed", logger.Err(err))
	return fail(c, http.StatusInternalServerError, "failed to "+op)
}

// ListSlots returns the caller's slots with their signups.
func (h *MemberSlotHandler) ListSlots(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	items, err := h.Slots.ListByOwner(ctx, uid)
	if err != nil {
		return h.slotError(c, err, "load meeting slots")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CreateSlot publishes a new slot owned by the caller.
func (h *MemberSlotHandler) CreateSlot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	var in model.SlotInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	in = in.Normalize()
	if err := model.ValidateSlotInput(in, h.Now()); err != nil {
		return invalidInput(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	s := &model.MeetingSlot{OwnerID: uid, Location: in.Location, StartTime: in.StartTime, EndTime: in.EndTime, Capacity: in.Capacity}
	if err := h.Slots.Create(ctx, s); err != nil {
		return h.slotError(c, err, "create meeting slot")
	}
	h.changed(ctx, "create")
	return c.JSON(http.StatusCreated, s)
}

// UpdateSlot edits location, times and capacity of an owned slot.
func (h *MemberSlotHandler) UpdateSlot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid slot id")
	}
	var in model.SlotInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	in = in.Normalize()
	if err := model.ValidateSlotInput(in, h.Now()); err != nil {
		return invalidInput(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	s, err := h.Slots.UpdateByIDAndOwner(ctx, id, uid, in)
	if errors.Is(err, repository.ErrNoChange) {
		s, err = h.Slots.GetByID(ctx, id)
		if err != nil {
			return h.slotError(c, err, "update meeting slot")
		}
		return c.JSON(http.StatusOK, s)
	}
	if err != nil {
		return h.slotError(c, err, "update meeting slot")
	}
	h.changed(ctx, "update")
	return c.JSON(http.StatusOK, s)
}

// DeleteSlot removes an owned slot with its signups and queues one
// cancellation notice per signup.
func (h *MemberSlotHandler) DeleteSlot(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid slot id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	s, err := h.Slots.DeleteByIDAndOwner(ctx, id, uid)
	if err != nil {
		return h.slotError(c, err, "delete meeting slot")
	}
	h.changed(ctx, "delete")

	notified := 0
	if h.Publisher != nil && len(s.Signups) > 0 {
		pctx, pcancel := publishCtx(c)
		defer pcancel()
		if err := h.Publisher.PublishSlotCancelled(pctx, queue.NewSlotCancelledEvent(*s, h.Now())); err != nil {
			h.log.Warn(ctx, "publish cancellation failed", logger.Uint64("slot_id", id), logger.Err(err))
		} else {
			notified = len(s.Signups)
			metricsOrDefault(h.Metrics).CancellationNotices(notified)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":        "meeting slot deleted",
		"cancelledCount": len(s.Signups),
		"notified":       notified,
	})
}

type attendanceReq struct {
	Attended *bool `json:"attended"`
}

// SetAttendance records whether a signup attended the caller's slot.
func (h *MemberSlotHandler) SetAttendance(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid signup id")
	}
	var req attendanceReq
	if err := c.Bind(&req); err != nil || req.Attended == nil {
		return fail(c, http.StatusBadRequest, "attended is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	g, err := h.Signups.SetAttendance(ctx, id, uid, *req.Attended)
	if err != nil {
		return h.slotError(c, err, "update attendance")
	}
	h.changed(ctx, "attendance")
	return c.JSON(http.StatusOK, g)
}
