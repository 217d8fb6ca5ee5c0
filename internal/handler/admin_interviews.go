package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/repository"
)

// AdminInterviewHandler serves interviews, applications and scorecards to
// admins.
type AdminInterviewHandler struct {
	Interviews  *repository.InterviewRepo
	Evaluations *repository.EvaluationRepo
	Metrics     *metrics.Manager

	log logger.Logger
}

func NewAdminInterviewHandler(iv *repository.InterviewRepo, ev *repository.EvaluationRepo) *AdminInterviewHandler {
	return &AdminInterviewHandler{Interviews: iv, Evaluations: ev, log: logFor("admin-interviews")}
}

func (h *AdminInterviewHandler) interviewError(c echo.Context, err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrInterviewNotFound):
		return fail(c, http.StatusNotFound, "interview not found")
	case errors.Is(err, repository.ErrApplicationNotFound):
		return fail(c, http.StatusNotFound, "application not found in this interview")
	case errors.Is(err, repository.ErrGroupNotFound):
		return fail(c, http.StatusNotFound, "interview group not found")
	}
	h.log.Error(c.Request().Context(), op+" failed", logger.Err(err))
	return fail(c, http.StatusInternalServerError, "failed to "+op)
}

// CreateInterview creates an interview with its groups.
func (h *AdminInterviewHandler) CreateInterview(c echo.Context) error {
	var in model.InterviewInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(in.Title) == "" {
		return invalidInput(c, &model.ValidationError{Field: "title", Message: "title is required"})
	}
	for _, g := range in.Groups {
		if strings.TrimSpace(g) == "" {
			return invalidInput(c, &model.ValidationError{Field: "groups", Message: "group names cannot be empty"})
		}
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	iv, err := h.Interviews.Create(ctx, in)
	if err != nil {
		return h.interviewError(c, err, "create interview")
	}
	return c.JSON(http.StatusCreated, iv)
}

// GetInterview returns an interview with its groups.
func (h *AdminInterviewHandler) GetInterview(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid interview id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	iv, err := h.Interviews.GetByID(ctx, id)
	if err != nil {
		return h.interviewError(c, err, "load interview")
	}
	return c.JSON(http.StatusOK, iv)
}

// parseGroupIDs reads a comma separated list such as "1,2".
func parseGroupIDs(raw string) ([]uint64, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var out []uint64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil || id == 0 {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

// ListApplications returns the interview's applications, optionally
// narrowed with ?groupIds=1,2.
func (h *AdminInterviewHandler) ListApplications(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid interview id")
	}
	groups, ok := parseGroupIDs(c.QueryParam("groupIds"))
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid groupIds")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if _, err := h.Interviews.GetByID(ctx, id); err != nil {
		return h.interviewError(c, err, "load applications")
	}
	items, err := h.Interviews.ListApplications(ctx, id, groups)
	if err != nil {
		return h.interviewError(c, err, "load applications")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CreateApplication adds a candidate to one of the interview's groups.
func (h *AdminInterviewHandler) CreateApplication(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid interview id")
	}
	var in model.ApplicationInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(in.CandidateName) == "" {
		return invalidInput(c, &model.ValidationError{Field: "candidateName", Message: "candidate name is required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if _, err := h.Interviews.GetByID(ctx, id); err != nil {
		return h.interviewError(c, err, "create application")
	}
	a, err := h.Interviews.CreateApplication(ctx, id, in)
	if err != nil {
		return h.interviewError(c, err, "create application")
	}
	return c.JSON(http.StatusCreated, a)
}

// ListEvaluations returns every scorecard recorded for the interview.
func (h *AdminInterviewHandler) ListEvaluations(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid interview id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	if _, err := h.Interviews.GetByID(ctx, id); err != nil {
		return h.interviewError(c, err, "load evaluations")
	}
	items, err := h.Evaluations.ListByInterview(ctx, id)
	if err != nil {
		return h.interviewError(c, err, "load evaluations")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UpsertEvaluation creates or overwrites the caller's scorecard for one
// application.
func (h *AdminInterviewHandler) UpsertEvaluation(c echo.Context) error {
	m := metricsOrDefault(h.Metrics)
	uid, err := getUserID(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	id, ok := pathID(c, "id")
	if !ok {
		return fail(c, http.StatusBadRequest, "invalid interview id")
	}
	var in model.EvaluationInput
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if in.ApplicationID == 0 {
		return invalidInput(c, &model.ValidationError{Field: "applicationId", Message: "applicationId is required"})
	}
	if err := model.ValidateEvaluation(in.Decision, in.RubricScores); err != nil {
		m.EvaluationUpsert("invalid")
		return invalidInput(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	e := &model.Evaluation{
		InterviewID:   id,
		ApplicationID: in.ApplicationID,
		EvaluatorID:   uid,
		Notes:         in.Notes,
		Decision:      in.Decision,
		RubricScores:  in.RubricScores,
	}
	if err := h.Evaluations.Upsert(ctx, e); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			m.EvaluationUpsert("conflict")
			return fail(c, http.StatusConflict, "evaluation was saved concurrently, try again")
		}
		m.EvaluationUpsert("error")
		return h.interviewError(c, err, "save evaluation")
	}
	m.EvaluationUpsert("saved")
	stored, err := h.Evaluations.Get(ctx, e.ApplicationID, e.EvaluatorID)
	if err != nil {
		return h.interviewError(c, err, "load evaluation")
	}
	return c.JSON(http.StatusOK, stored)
}
