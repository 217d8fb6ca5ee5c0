package client

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/database"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/repository"
	"github.com/iliyamo/recruiting-portal/internal/router"
	"github.com/iliyamo/recruiting-portal/internal/utils"
)

const secret = "client-secret"

type server struct {
	url      string
	db       *sql.DB
	requests atomic.Int64
	// failApp makes evaluation upserts for that application answer 500.
	failApp atomic.Uint64
}

func newServer(t *testing.T) *server {
	t.Helper()
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))

	e := router.New(router.Deps{
		Cfg: config.Config{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4},
		DB:  db,
	})
	s := &server{db: db}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if id := s.failApp.Load(); id != 0 && r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/evaluations") {
			body, _ := io.ReadAll(r.Body)
			var in model.EvaluationInput
			_ = json.Unmarshal(body, &in)
			if in.ApplicationID == id {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"database unavailable"}`))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		e.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	s.url = ts.URL
	return s
}

func (s *server) client(t *testing.T, uid uint64, role string) *Client {
	t.Helper()
	if role == "" {
		return New(s.url)
	}
	tok, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return New(s.url, WithToken(tok.Token))
}

func slotInput(start time.Time, capacity int) model.SlotInput {
	return model.SlotInput{Location: "Room A", StartTime: start, Capacity: capacity}
}

func TestSlotScenario(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	member := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)
	public := NewSlotManager(s.client(t, 0, ""), ScopePublic)

	created, err := member.CreateSlot(ctx, slotInput(time.Now().Add(24*time.Hour), 2))
	require.NoError(t, err)
	require.Len(t, member.Slots(), 1)

	slots, err := public.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Room A", slots[0].Location)
	assert.Equal(t, 2, slots[0].Remaining())

	for _, name := range []string{"ada", "grace"} {
		res, err := public.Signup(ctx, created.ID, model.SignupInput{FullName: name, Email: name + "@example.com"})
		require.NoError(t, err)
		assert.True(t, res.NeedsAccount)
	}
	slot, ok := public.Slot(created.ID)
	require.True(t, ok)
	assert.Equal(t, 0, slot.Remaining())

	// known full locally: no request is sent
	before := s.requests.Load()
	_, err = public.Signup(ctx, created.ID, model.SignupInput{FullName: "linus", Email: "linus@example.com"})
	assert.ErrorIs(t, err, ErrSlotFull)
	assert.Equal(t, before, s.requests.Load())

	// a stale manager hears it from the server
	stale := NewSlotManager(s.client(t, 0, ""), ScopePublic)
	_, err = stale.Signup(ctx, created.ID, model.SignupInput{FullName: "linus", Email: "linus@example.com"})
	assert.ErrorIs(t, err, ErrSlotFull)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusConflict, re.Status)
	assert.Equal(t, "this meeting slot is full", UserMessage(err, "failed to sign up"))
}

func TestSignupDuplicate(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	member := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)
	a, err := member.CreateSlot(ctx, slotInput(time.Now().Add(time.Hour), 3))
	require.NoError(t, err)
	b, err := member.CreateSlot(ctx, slotInput(time.Now().Add(2*time.Hour), 3))
	require.NoError(t, err)

	public := NewSlotManager(s.client(t, 0, ""), ScopePublic)
	_, err = public.Signup(ctx, a.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = public.Signup(ctx, b.ID, model.SignupInput{FullName: "Ada", Email: "Ada@Example.com"})
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
	assert.NotErrorIs(t, err, ErrSlotFull)
}

func TestValidationNeverReachesNetwork(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	m := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)

	start := time.Now().Add(time.Hour)
	end := start.Add(-time.Minute)
	in := slotInput(start, 2)
	in.EndTime = &end
	_, err := m.CreateSlot(ctx, in)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "endTime", ve.Field)

	_, err = m.Signup(ctx, 1, model.SignupInput{FullName: "x", Email: "not-an-email"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email is not a valid address", UserMessage(err, "failed"))
	assert.Zero(t, s.requests.Load())
}

func TestDeleteConfirmation(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	m := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)
	empty, err := m.CreateSlot(ctx, slotInput(time.Now().Add(time.Hour), 2))
	require.NoError(t, err)
	busy, err := m.CreateSlot(ctx, slotInput(time.Now().Add(2*time.Hour), 2))
	require.NoError(t, err)
	_, err = NewSlotManager(s.client(t, 0, ""), ScopePublic).Signup(ctx, busy.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	_, err = m.ListSlots(ctx)
	require.NoError(t, err)

	var prompts []string
	decline := func(p string) bool { prompts = append(prompts, p); return false }
	before := s.requests.Load()
	_, err = m.DeleteSlot(ctx, busy.ID, decline)
	assert.ErrorIs(t, err, ErrDeleteNotConfirmed)
	_, err = m.DeleteSlot(ctx, empty.ID, decline)
	assert.ErrorIs(t, err, ErrDeleteNotConfirmed)
	assert.Equal(t, before, s.requests.Load())

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "cancellation emails will be sent")
	assert.NotContains(t, prompts[1], "cancellation emails")

	res, err := m.DeleteSlot(ctx, busy.ID, func(string) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, 1, res.CancelledCount)
	require.Len(t, m.Slots(), 1)
	assert.Equal(t, empty.ID, m.Slots()[0].ID)
}

func TestEditSession(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	m := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)
	a, err := m.CreateSlot(ctx, slotInput(time.Now().Add(time.Hour), 2))
	require.NoError(t, err)
	b, err := m.CreateSlot(ctx, slotInput(time.Now().Add(2*time.Hour), 2))
	require.NoError(t, err)

	ed, err := m.BeginEdit(a.ID)
	require.NoError(t, err)
	_, err = m.BeginEdit(b.ID)
	assert.ErrorIs(t, err, ErrEditInProgress)

	ed.Input.Capacity = 11
	_, err = ed.Submit(ctx)
	require.Error(t, err)
	_, err = m.BeginEdit(b.ID)
	assert.ErrorIs(t, err, ErrEditInProgress, "a failed submit keeps the session open")

	ed.Input.Capacity = 4
	ed.Input.Location = "Room B"
	updated, err := ed.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Room B", updated.Location)
	cached, ok := m.Slot(a.ID)
	require.True(t, ok)
	assert.Equal(t, 4, cached.Capacity)

	ed2, err := m.BeginEdit(b.ID)
	require.NoError(t, err)
	ed2.Cancel()
	_, err = m.BeginEdit(a.ID)
	assert.NoError(t, err)
}

func TestAttendanceAndForeignSlot(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	owner := NewSlotManager(s.client(t, 1, model.RoleMember), ScopeMember)
	slot, err := owner.CreateSlot(ctx, slotInput(time.Now().Add(time.Hour), 2))
	require.NoError(t, err)
	_, err = NewSlotManager(s.client(t, 0, ""), ScopePublic).Signup(ctx, slot.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com", StudentID: "1234567"})
	require.NoError(t, err)
	_, err = owner.ListSlots(ctx)
	require.NoError(t, err)
	cached, _ := owner.Slot(slot.ID)
	require.Len(t, cached.Signups, 1)
	signupID := cached.Signups[0].ID

	g, err := owner.SetAttendance(ctx, signupID, true)
	require.NoError(t, err)
	assert.True(t, g.Attended)
	cached, _ = owner.Slot(slot.ID)
	assert.True(t, cached.Signups[0].Attended)

	other := NewSlotManager(s.client(t, 2, model.RoleMember), ScopeMember)
	_, err = other.SetAttendance(ctx, signupID, false)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
	_, err = other.UpdateSlot(ctx, slot.ID, slotInput(slot.StartTime, 3))
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.Status)
}

func TestNetworkError(t *testing.T) {
	m := NewSlotManager(New("http://127.0.0.1:1"), ScopePublic)
	_, err := m.ListSlots(context.Background())
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "failed to load meeting slots", UserMessage(err, "failed to load meeting slots"))
}

func seedInterview(t *testing.T, db *sql.DB, n int) (*model.Interview, []model.Application) {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewInterviewRepo(db)
	iv, err := repo.Create(ctx, model.InterviewInput{Title: "Fall cycle", Groups: []string{"A", "B"}})
	require.NoError(t, err)
	var apps []model.Application
	for i := 0; i < n; i++ {
		a, err := repo.CreateApplication(ctx, iv.ID, model.ApplicationInput{GroupID: iv.Groups[0].ID, CandidateName: string(rune('A' + i))})
		require.NoError(t, err)
		apps = append(apps, *a)
	}
	return iv, apps
}

func ptr[T any](v T) *T { return &v }

func TestEvaluationRecorderBuffer(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	iv, apps := seedInterview(t, s.db, 1)
	r := NewEvaluationRecorder(s.client(t, 7, model.RoleAdmin), iv.ID, 7)
	require.NoError(t, r.Load(ctx))
	require.Len(t, r.Applications(), 1)

	app := apps[0].ID
	e := r.GetEvaluation(app)
	assert.Equal(t, "", e.Notes)
	assert.Nil(t, e.Decision)
	assert.Empty(t, e.RubricScores)

	_, err := r.UpdateEvaluation(app, EvaluationPatch{RubricScores: map[model.RubricCategory]int{"charisma": 3}})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	_, err = r.UpdateEvaluation(app, EvaluationPatch{RubricScores: map[model.RubricCategory]int{model.RubricLeadership: 6}})
	require.ErrorAs(t, err, &ve)
	_, err = r.UpdateEvaluation(app, EvaluationPatch{Decision: ptr(model.Decision("PERHAPS"))})
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, r.GetEvaluation(app).RubricScores, "rejected patches leave the buffer alone")

	_, err = r.UpdateEvaluation(app, EvaluationPatch{Notes: ptr("solid"), Decision: ptr(model.DecisionMaybeYes),
		RubricScores: map[model.RubricCategory]int{model.RubricCuriosity: 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.requests.Load(), "only Load touched the network")

	saved, err := r.SaveEvaluation(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), saved.EvaluatorID)

	fresh := NewEvaluationRecorder(s.client(t, 7, model.RoleAdmin), iv.ID, 7)
	require.NoError(t, fresh.Load(ctx))
	got := fresh.GetEvaluation(app)
	assert.Equal(t, "solid", got.Notes)
	require.NotNil(t, got.Decision)
	assert.Equal(t, model.DecisionMaybeYes, *got.Decision)
	assert.Equal(t, 5, got.RubricScores[model.RubricCuriosity])

	// another evaluator starts from an empty card
	other := NewEvaluationRecorder(s.client(t, 8, model.RoleAdmin), iv.ID, 8)
	require.NoError(t, other.Load(ctx))
	assert.Equal(t, "", other.GetEvaluation(app).Notes)

	got, err = fresh.UpdateEvaluation(app, EvaluationPatch{ClearDecision: true})
	require.NoError(t, err)
	assert.Nil(t, got.Decision)
}

func TestSaveAllPartialFailure(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	iv, apps := seedInterview(t, s.db, 3)
	r := NewEvaluationRecorder(s.client(t, 7, model.RoleAdmin), iv.ID, 7)
	require.NoError(t, r.Load(ctx))
	for _, a := range apps {
		_, err := r.UpdateEvaluation(a.ID, EvaluationPatch{Notes: ptr("note " + a.CandidateName)})
		require.NoError(t, err)
	}
	s.failApp.Store(apps[1].ID)

	out := r.SaveAll(ctx)
	assert.Equal(t, []uint64{apps[0].ID, apps[2].ID}, out.Succeeded)
	require.Len(t, out.Failed, 1)
	assert.Equal(t, apps[1].ID, out.Failed[0].ApplicationID)
	require.Error(t, out.Err())
	assert.Equal(t, "failed to save 1 evaluation(s)", out.Err().Error())

	s.failApp.Store(0)
	out = r.SaveAll(ctx)
	assert.NoError(t, out.Err())
	assert.Len(t, out.Succeeded, 3)
}

func TestRemoteErrorIs(t *testing.T) {
	err := error(&RemoteError{Status: 409, Message: "full", Code: "SLOT_FULL"})
	assert.True(t, errors.Is(err, ErrSlotFull))
	assert.False(t, errors.Is(err, ErrAlreadySignedUp))
	assert.Equal(t, "server answered 500 Internal Server Error", (&RemoteError{Status: 500}).Error())
}
