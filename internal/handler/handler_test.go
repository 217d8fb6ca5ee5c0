package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/database"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/middleware"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/queue"
	"github.com/iliyamo/recruiting-portal/internal/repository"
	"github.com/iliyamo/recruiting-portal/internal/utils"
)

const testSecret = "handler-secret"

type stubPublisher struct {
	mu        sync.Mutex
	cancelled []queue.SlotCancelledEvent
	created   []queue.SignupCreatedEvent
}

func (p *stubPublisher) PublishSlotCancelled(_ context.Context, ev queue.SlotCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, ev)
	return nil
}

func (p *stubPublisher) PublishSignupCreated(_ context.Context, ev queue.SignupCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, ev)
	return nil
}

type env struct {
	e       *echo.Echo
	db      *sql.DB
	pub     *stubPublisher
	now     time.Time
	changes int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))

	v := &env{e: echo.New(), db: db, pub: &stubPublisher{}, now: time.Now().UTC()}
	m := metrics.NewManager(metrics.WithRegistry(prometheus.NewRegistry()))
	clock := func() time.Time { return v.now }
	onChange := func(context.Context) { v.changes++ }

	users := repository.NewUserRepo(db)
	slots := repository.NewSlotRepo(db)
	signups := repository.NewSignupRepo(db)

	pub := NewPublicSlotHandler(slots, signups, users)
	pub.Publisher, pub.Metrics, pub.Now, pub.OnChange = v.pub, m, clock, onChange
	mem := NewMemberSlotHandler(slots, signups)
	mem.Publisher, mem.Metrics, mem.Now, mem.OnChange = v.pub, m, clock, onChange
	adm := NewAdminInterviewHandler(repository.NewInterviewRepo(db), repository.NewEvaluationRepo(db))
	adm.Metrics = m
	auth := NewAuthHandler(config.Config{
		JWTSecret:       testSecret,
		AccessTTLMin:    5,
		RefreshTTLDays:  1,
		BcryptCost:      4,
		AdminSignupCode: "letmein",
	}, users, repository.NewTokenRepo(db))

	v.e.POST("/auth/register", auth.Register)
	v.e.POST("/auth/login", auth.Login)
	v.e.POST("/auth/refresh", auth.Refresh)
	v.e.POST("/auth/logout", auth.Logout)
	v.e.GET("/me", auth.Me, middleware.JWTAuth(testSecret))
	v.e.GET("/meeting-slots", pub.ListSlots)
	v.e.POST("/meeting-slots/:id/signup", pub.Signup)

	mg := v.e.Group("/member", middleware.JWTAuth(testSecret), middleware.RequireRole(model.RoleMember, model.RoleAdmin))
	mg.GET("/meeting-slots", mem.ListSlots)
	mg.POST("/meeting-slots", mem.CreateSlot)
	mg.PUT("/meeting-slots/:id", mem.UpdateSlot)
	mg.DELETE("/meeting-slots/:id", mem.DeleteSlot)
	mg.PATCH("/meeting-signups/:id/attendance", mem.SetAttendance)

	ag := v.e.Group("/admin", middleware.JWTAuth(testSecret), middleware.RequireRole(model.RoleAdmin))
	ag.POST("/interviews", adm.CreateInterview)
	ag.GET("/interviews/:id", adm.GetInterview)
	ag.GET("/interviews/:id/applications", adm.ListApplications)
	ag.POST("/interviews/:id/applications", adm.CreateApplication)
	ag.GET("/interviews/:id/evaluations", adm.ListEvaluations)
	ag.POST("/interviews/:id/evaluations", adm.UpsertEvaluation)
	return v
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, uid, role, 5)
	require.NoError(t, err)
	return tok.Token
}

func (v *env) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	} else {
		r = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (v *env) createSlot(t *testing.T, tok string, capacity int) model.MeetingSlot {
	t.Helper()
	rec := v.do(t, http.MethodPost, "/member/meeting-slots", tok, model.SlotInput{
		Location:  "Room A",
		StartTime: v.now.Add(24 * time.Hour),
		Capacity:  capacity,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.MeetingSlot](t, rec)
}

func signupBody(name string) model.SignupInput {
	return model.SignupInput{FullName: name, Email: strings.ToLower(name) + "@example.com"}
}

func TestSignupScenario(t *testing.T) {
	v := newEnv(t)
	member := token(t, 1, model.RoleMember)
	slot := v.createSlot(t, member, 2)

	rec := v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct{ Items []PublicSlot }](t, rec)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Room A", list.Items[0].Location)
	assert.Equal(t, 2, list.Items[0].Remaining)

	for _, name := range []string{"Ada", "Grace"} {
		rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", signupBody(name))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[model.SignupResult](t, rec)
		assert.True(t, res.NeedsAccount)
		assert.Contains(t, res.Message, "Room A")
	}

	rec = v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	list = decode[struct{ Items []PublicSlot }](t, rec)
	assert.Equal(t, 0, list.Items[0].Remaining)
	assert.Equal(t, 2, list.Items[0].SignupCount)
	assert.NotContains(t, rec.Body.String(), "ada@example.com")

	rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", signupBody("Linus"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeSlotFull, decode[map[string]string](t, rec)["code"])
	assert.Len(t, v.pub.created, 2)
}

func TestListingExpiresAtNextStart(t *testing.T) {
	v := newEnv(t)
	member := token(t, 1, model.RoleMember)
	v.createSlot(t, member, 2)

	rec := v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))

	v.now = v.now.Add(24*time.Hour - 90*time.Second)
	rec = v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	assert.Equal(t, "public, max-age=90", rec.Header().Get("Cache-Control"))

	v.now = v.now.Add(2 * time.Minute)
	rec = v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	assert.Empty(t, decode[struct{ Items []PublicSlot }](t, rec).Items)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestNextListingChange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(20 * time.Minute)
	slots := []model.MeetingSlot{
		{StartTime: now.Add(2 * time.Hour)},
		{StartTime: now.Add(-10 * time.Minute), EndTime: &end},
		{StartTime: now.Add(-3 * time.Hour)},
	}
	d, ok := nextListingChange(slots, now)
	require.True(t, ok)
	assert.Equal(t, 20*time.Minute, d)

	_, ok = nextListingChange(slots[2:], now)
	assert.False(t, ok)
}

func TestSignupRejections(t *testing.T) {
	v := newEnv(t)
	member := token(t, 1, model.RoleMember)
	a := v.createSlot(t, member, 3)
	b := v.createSlot(t, member, 3)

	rec := v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", a.ID), "", signupBody("Ada"))
	require.Equal(t, http.StatusCreated, rec.Code)

	dup := signupBody("Ada")
	dup.Email = "ADA@example.com"
	rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", b.ID), "", dup)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeAlreadySignedUp, decode[map[string]string](t, rec)["code"])

	bad := signupBody("Bob")
	bad.StudentID = "12ab"
	rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", b.ID), "", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "studentId", decode[map[string]string](t, rec)["field"])

	rec = v.do(t, http.MethodPost, "/meeting-slots/999/signup", "", signupBody("Cy"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	past := &model.MeetingSlot{OwnerID: 1, Location: "Old", StartTime: v.now.Add(-time.Hour), Capacity: 2}
	require.NoError(t, repository.NewSlotRepo(v.db).Create(context.Background(), past))
	rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", past.ID), "", signupBody("Dee"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeSlotStarted, decode[map[string]string](t, rec)["code"])
}

func TestMemberSlotOwnership(t *testing.T) {
	v := newEnv(t)
	owner := token(t, 1, model.RoleMember)
	other := token(t, 2, model.RoleMember)
	slot := v.createSlot(t, owner, 2)

	in := model.SlotInput{Location: "Room B", StartTime: slot.StartTime, Capacity: 3}
	rec := v.do(t, http.MethodPut, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), other, in)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = v.do(t, http.MethodPut, "/member/meeting-slots/404", owner, in)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(t, http.MethodPut, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), owner, in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Room B", decode[model.MeetingSlot](t, rec).Location)

	// unchanged input still answers with the slot
	rec = v.do(t, http.MethodPut, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), owner, in)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[model.MeetingSlot](t, rec).Capacity)

	rec = v.do(t, http.MethodGet, "/member/meeting-slots", other, nil)
	assert.Empty(t, decode[struct{ Items []model.MeetingSlot }](t, rec).Items)

	rec = v.do(t, http.MethodGet, "/member/meeting-slots", token(t, 3, model.RoleCandidate), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMemberSlotValidation(t *testing.T) {
	v := newEnv(t)
	owner := token(t, 1, model.RoleMember)
	start := v.now.Add(time.Hour)
	end := start.Add(-time.Minute)

	rec := v.do(t, http.MethodPost, "/member/meeting-slots", owner, model.SlotInput{Location: "A", StartTime: start, EndTime: &end, Capacity: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "endTime", decode[map[string]string](t, rec)["field"])

	rec = v.do(t, http.MethodPost, "/member/meeting-slots", owner, model.SlotInput{Location: "A", StartTime: start, Capacity: 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidInput, decode[map[string]string](t, rec)["code"])
}

func TestCapacityBelowSignups(t *testing.T) {
	v := newEnv(t)
	owner := token(t, 1, model.RoleMember)
	slot := v.createSlot(t, owner, 3)
	for _, name := range []string{"Ada", "Grace"} {
		rec := v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", signupBody(name))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := v.do(t, http.MethodPut, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), owner,
		model.SlotInput{Location: slot.Location, StartTime: slot.StartTime, Capacity: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeCapacityBelowCount, decode[map[string]string](t, rec)["code"])
}

func TestDeleteSlotPublishesCancellation(t *testing.T) {
	v := newEnv(t)
	owner := token(t, 1, model.RoleMember)
	slot := v.createSlot(t, owner, 3)
	for _, name := range []string{"Ada", "Grace"} {
		rec := v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", signupBody(name))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := v.do(t, http.MethodDelete, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), token(t, 2, model.RoleMember), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = v.do(t, http.MethodDelete, fmt.Sprintf("/member/meeting-slots/%d", slot.ID), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["cancelledCount"])

	require.Len(t, v.pub.cancelled, 1)
	ev := v.pub.cancelled[0]
	assert.Equal(t, slot.ID, ev.Slot.ID)
	require.Len(t, ev.Signups, 2)
	assert.Equal(t, "ada@example.com", ev.Signups[0].Email)

	rec = v.do(t, http.MethodGet, "/meeting-slots", "", nil)
	assert.Empty(t, decode[struct{ Items []PublicSlot }](t, rec).Items)
}

func TestSetAttendance(t *testing.T) {
	v := newEnv(t)
	owner := token(t, 1, model.RoleMember)
	slot := v.createSlot(t, owner, 3)
	rec := v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", signupBody("Ada"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = v.do(t, http.MethodGet, "/member/meeting-slots", owner, nil)
	slots := decode[struct{ Items []model.MeetingSlot }](t, rec).Items
	require.Len(t, slots, 1)
	require.Len(t, slots[0].Signups, 1)
	sid := slots[0].Signups[0].ID

	path := fmt.Sprintf("/member/meeting-signups/%d/attendance", sid)
	rec = v.do(t, http.MethodPatch, path, owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = v.do(t, http.MethodPatch, path, token(t, 2, model.RoleMember), map[string]bool{"attended": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 2; i++ {
		rec = v.do(t, http.MethodPatch, path, owner, map[string]bool{"attended": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.True(t, decode[model.Signup](t, rec).Attended)
	}
}

func TestEvaluations(t *testing.T) {
	v := newEnv(t)
	admin := token(t, 7, model.RoleAdmin)

	rec := v.do(t, http.MethodPost, "/admin/interviews", token(t, 1, model.RoleMember), model.InterviewInput{Title: "Fall"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = v.do(t, http.MethodPost, "/admin/interviews", admin, model.InterviewInput{Title: "Fall", Groups: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	iv := decode[model.Interview](t, rec)
	require.Len(t, iv.Groups, 2)

	base := fmt.Sprintf("/admin/interviews/%d", iv.ID)
	rec = v.do(t, http.MethodPost, base+"/applications", admin, model.ApplicationInput{GroupID: iv.Groups[0].ID, CandidateName: "Ada"})
	require.Equal(t, http.StatusCreated, rec.Code)
	app := decode[model.Application](t, rec)
	rec = v.do(t, http.MethodPost, base+"/applications", admin, model.ApplicationInput{GroupID: iv.Groups[1].ID, CandidateName: "Bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = v.do(t, http.MethodGet, fmt.Sprintf("%s/applications?groupIds=%d", base, iv.Groups[0].ID), admin, nil)
	apps := decode[struct{ Items []model.Application }](t, rec).Items
	require.Len(t, apps, 1)
	assert.Equal(t, "Ada", apps[0].CandidateName)
	rec = v.do(t, http.MethodGet, base+"/applications?groupIds=x", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	yes := model.DecisionYes
	in := model.EvaluationInput{
		ApplicationID: app.ID,
		Notes:         "strong",
		Decision:      &yes,
		RubricScores:  map[model.RubricCategory]int{model.RubricCommunication: 4},
	}
	rec = v.do(t, http.MethodPost, base+"/evaluations", admin, in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[model.Evaluation](t, rec)
	assert.Equal(t, uint64(7), saved.EvaluatorID)
	assert.Equal(t, iv.ID, saved.InterviewID)
	assert.Equal(t, "strong", saved.Notes)
	require.NotNil(t, saved.Decision)
	assert.Equal(t, model.DecisionYes, *saved.Decision)
	assert.Equal(t, 4, saved.RubricScores[model.RubricCommunication])
	assert.False(t, saved.UpdatedAt.IsZero())

	in.Notes = "very strong"
	rec = v.do(t, http.MethodPost, base+"/evaluations", admin, in)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, saved.ID, decode[model.Evaluation](t, rec).ID)

	in.RubricScores = map[model.RubricCategory]int{"charisma": 3}
	rec = v.do(t, http.MethodPost, base+"/evaluations", admin, in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	in.RubricScores = nil
	in.ApplicationID = 999
	rec = v.do(t, http.MethodPost, base+"/evaluations", admin, in)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(t, http.MethodGet, base+"/evaluations", admin, nil)
	evals := decode[struct{ Items []model.Evaluation }](t, rec).Items
	require.Len(t, evals, 1)
	assert.Equal(t, "very strong", evals[0].Notes)

	rec = v.do(t, http.MethodGet, "/admin/interviews/999/evaluations", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthFlow(t *testing.T) {
	v := newEnv(t)

	rec := v.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "m@example.com", "password": "password1", "role": "member"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[AuthResponse](t, rec)
	assert.Equal(t, model.RoleMember, reg.User.Role)

	rec = v.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "m@example.com", "password": "password1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = v.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "a@example.com", "password": "password1", "role": "ADMIN", "adminCode": "nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = v.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "M@example.com", "password": "password1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[AuthResponse](t, rec)

	rec = v.do(t, http.MethodGet, "/me", login.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m@example.com", decode[MeResponse](t, rec).Email)

	rec = v.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = v.do(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": login.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a signup with a registered e-mail does not need an account
	slot := v.createSlot(t, reg.Access.Token, 2)
	rec = v.do(t, http.MethodPost, fmt.Sprintf("/meeting-slots/%d/signup", slot.ID), "", model.SignupInput{FullName: "M", Email: "m@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, decode[model.SignupResult](t, rec).NeedsAccount)
}
