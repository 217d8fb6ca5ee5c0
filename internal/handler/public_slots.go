package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/queue"
	"github.com/iliyamo/recruiting-portal/internal/repository"
)

// PublicSlotHandler serves the anonymous coffee chat listing and signup.
type PublicSlotHandler struct {
	Slots     *repository.SlotRepo
	Signups   *repository.SignupRepo
	Users     *repository.UserRepo
	Publisher NotificationPublisher // nil disables notifications
	Metrics   *metrics.Manager
	Now       func() time.Time
	// OnChange is called after every successful signup, typically to purge
	// the cached listing.
	OnChange func(ctx context.Context)

	log logger.Logger
}

func NewPublicSlotHandler(slots *repository.SlotRepo, signups *repository.SignupRepo, users *repository.UserRepo) *PublicSlotHandler {
	return &PublicSlotHandler{Slots: slots, Signups: signups, Users: users, Now: time.Now, log: logFor("public-slots")}
}

// PublicSlot is a slot as the public sees it: counts, no personal data.
type PublicSlot struct {
	ID          uint64             `json:"id"`
	Location    string             `json:"location"`
	StartTime   time.Time          `json:"startTime"`
	EndTime     *time.Time         `json:"endTime,omitempty"`
	Capacity    int                `json:"capacity"`
	SignupCount int                `json:"signupCount"`
	Remaining   int                `json:"remaining"`
	Status      displaytime.Status `json:"status"`
}

func toPublicSlot(s model.MeetingSlot, now time.Time) PublicSlot {
	return PublicSlot{
		ID:          s.ID,
		Location:    s.Location,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Capacity:    s.Capacity,
		SignupCount: s.Taken(),
		Remaining:   s.Remaining(),
		Status:      s.Status(now),
	}
}

// ListSlots returns every current and future slot ordered by start time.
func (h *PublicSlotHandler) ListSlots(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	all, err := h.Slots.ListAll(ctx)
	if err != nil {
		h.log.Error(ctx, "list slots failed", logger.Err(err))
		return fail(c, http.StatusInternalServerError, "failed to load meeting slots")
	}
	now := h.Now()
	open := model.CurrentAndFutureSlots(all, now)
	items := make([]PublicSlot, 0, len(open))
	for _, s := range open {
		items = append(items, toPublicSlot(s, now))
	}
	if d, ok := nextListingChange(open, now); ok {
		c.Response().Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(d/time.Second)))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// nextListingChange returns how long the listing computed at now stays
// valid: until the earliest listed slot starts or changes status.
func nextListingChange(slots []model.MeetingSlot, now time.Time) (time.Duration, bool) {
	var next time.Time
	for _, s := range slots {
		t := s.StartTime
		if !now.Before(t) {
			t = t.Add(displaytime.DefaultStatusDuration)
			if s.EndTime != nil {
				t = *s.EndTime
			}
		}
		if t.After(now) && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	if next.IsZero() {
		return 0, false
	}
	return next.Sub(now), true
}

// Signup takes a seat in a slot for the person in the body.
func (h *PublicSlotHandler) Signup(c echo.Context) error {
	m := metricsOrDefault(h.Metrics)
	slotID, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid slot id")
	}
	var in model.SignupInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	in = in.Normalize()
	if err := model.ValidateSignupInput(in); err != nil {
		m.SignupResult("invalid")
		return invalidInput(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	now := h.Now()
	signup, slot, err := h.Signups.Create(ctx, slotID, in, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSlotNotFound):
			return fail(c, http.StatusNotFound, "meeting slot not found")
		case errors.Is(err, repository.ErrSlotFull):
			m.SignupResult("full")
			return failCode(c, http.StatusConflict, "this meeting slot is full", CodeSlotFull)
		case errors.Is(err, repository.ErrAlreadySignedUp):
			m.SignupResult("duplicate")
			return failCode(c, http.StatusConflict, "you have already signed up for a coffee chat", CodeAlreadySignedUp)
		case errors.Is(err, repository.ErrSlotStarted):
			m.SignupResult("started")
			return failCode(c, http.StatusConflict, "this meeting slot has already started", CodeSlotStarted)
		}
		h.log.Error(ctx, "signup failed", logger.Uint64("slot_id", slotID), logger.Err(err))
		return fail(c, http.StatusInternalServerError, "failed to sign up")
	}
	m.SignupResult("created")

	needsAccount := false
	if h.Users != nil {
		exists, err := h.Users.ExistsByEmail(ctx, in.Email)
		if err != nil {
			h.log.Warn(ctx, "account lookup failed", logger.Err(err))
		}
		needsAccount = err == nil && !exists
	}

	if h.OnChange != nil {
		h.OnChange(ctx)
	}
	if h.Publisher != nil {
		pctx, pcancel := publishCtx(c)
		defer pcancel()
		ev := queue.SignupCreatedEvent{Slot: queue.NewSlotInfo(*slot), Signup: queue.NewRecipient(*signup), CreatedAt: now.UTC()}
		if err := h.Publisher.PublishSignupCreated(pctx, ev); err != nil {
			h.log.Warn(ctx, "publish signup failed", logger.Uint64("signup_id", signup.ID), logger.Err(err))
		}
	}

	msg := fmt.Sprintf("You're signed up for %s at %s.", displaytime.Format(slot.StartTime), slot.Location)
	return c.JSON(http.StatusCreated, model.SignupResult{Message: msg, NeedsAccount: needsAccount})
}
