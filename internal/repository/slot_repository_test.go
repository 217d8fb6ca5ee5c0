package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

func TestSignupCapacity(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	s := createSlot(t, slots, 1, now.Add(24*time.Hour), 2)

	_, _, err := signups.Create(ctx, s.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)
	_, after, err := signups.Create(ctx, s.ID, model.SignupInput{FullName: "Bob", Email: "bob@example.com", StudentID: "1234567"}, now)
	require.NoError(t, err)
	assert.Equal(t, 2, after.SignupCount)
	assert.True(t, after.Full())

	_, _, err = signups.Create(ctx, s.ID, model.SignupInput{FullName: "Cy", Email: "cy@example.com"}, now)
	assert.ErrorIs(t, err, ErrSlotFull)

	got, err := slots.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, got.Signups, 2)
	assert.Equal(t, 0, got.Remaining())
	assert.Equal(t, "ada@example.com", got.Signups[0].Email)
	assert.Equal(t, "-", got.Signups[0].DisplayStudentID())
	assert.Equal(t, "1234567", got.Signups[1].StudentID)
}

func TestSignupRejectsDuplicateEmailAcrossSlots(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	a := createSlot(t, slots, 1, now.Add(time.Hour), 3)
	b := createSlot(t, slots, 1, now.Add(2*time.Hour), 3)

	_, _, err := signups.Create(ctx, a.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)
	_, _, err = signups.Create(ctx, a.ID, model.SignupInput{FullName: "Ada", Email: "ADA@example.com"}, now)
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
	_, _, err = signups.Create(ctx, b.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
}

func TestSignupAllowedAfterEarlierChatCompleted(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := createSlot(t, slots, 1, now.Add(time.Hour), 3)
	_, _, err := signups.Create(ctx, first.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)

	second := createSlot(t, slots, 1, now.Add(30*24*time.Hour), 3)

	// First chat started but has no end time, so it runs for the default hour.
	during := now.Add(90 * time.Minute)
	_, _, err = signups.Create(ctx, second.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, during)
	assert.ErrorIs(t, err, ErrAlreadySignedUp)

	later := now.Add(7 * 24 * time.Hour)
	g, _, err := signups.Create(ctx, second.ID, model.SignupInput{FullName: "Ada", Email: "ADA@example.com"}, later)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", g.Email)

	_, _, err = signups.Create(ctx, second.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, later)
	assert.ErrorIs(t, err, ErrAlreadySignedUp)
}

func TestSignupRejectsStartedAndMissingSlots(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := createSlot(t, slots, 1, now.Add(-time.Hour), 3)
	_, _, err := signups.Create(ctx, past.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	assert.ErrorIs(t, err, ErrSlotStarted)

	_, _, err = signups.Create(ctx, 999, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestListAllCountsWithoutDetails(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	later := createSlot(t, slots, 2, now.Add(48*time.Hour), 2)
	sooner := createSlot(t, slots, 1, now.Add(24*time.Hour), 2)
	_, _, err := signups.Create(ctx, sooner.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)

	all, err := slots.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sooner.ID, all[0].ID)
	assert.Equal(t, 1, all[0].SignupCount)
	assert.Empty(t, all[0].Signups)
	assert.Equal(t, later.ID, all[1].ID)
	assert.Equal(t, 0, all[1].SignupCount)
}

func TestListByOwnerScopes(t *testing.T) {
	db := newTestDB(t)
	slots := NewSlotRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	createSlot(t, slots, 1, now.Add(time.Hour), 2)
	createSlot(t, slots, 2, now.Add(time.Hour), 2)

	mine, err := slots.ListByOwner(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, uint64(1), mine[0].OwnerID)
	assert.NotNil(t, mine[0].Signups)
}

func TestUpdateByIDAndOwner(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	s := createSlot(t, slots, 1, now.Add(24*time.Hour), 3)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, _, err := signups.Create(ctx, s.ID, model.SignupInput{FullName: "X", Email: email}, now)
		require.NoError(t, err)
	}

	end := now.Add(25 * time.Hour)
	in := model.SlotInput{Location: " Room B ", StartTime: now.Add(24 * time.Hour), EndTime: &end, Capacity: 2}

	_, err := slots.UpdateByIDAndOwner(ctx, s.ID, 2, in)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = slots.UpdateByIDAndOwner(ctx, 999, 1, in)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	low := in
	low.Capacity = 1
	_, err = slots.UpdateByIDAndOwner(ctx, s.ID, 1, low)
	assert.ErrorIs(t, err, ErrCapacityBelowSignups)

	got, err := slots.UpdateByIDAndOwner(ctx, s.ID, 1, in)
	require.NoError(t, err)
	assert.Equal(t, "Room B", got.Location)
	assert.Equal(t, 2, got.Capacity)
	require.NotNil(t, got.EndTime)
	assert.True(t, end.Equal(*got.EndTime))
	assert.Len(t, got.Signups, 2)

	_, err = slots.UpdateByIDAndOwner(ctx, s.ID, 1, in)
	assert.ErrorIs(t, err, ErrNoChange)
}

func TestDeleteReturnsSignups(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	s := createSlot(t, slots, 1, now.Add(time.Hour), 3)
	_, _, err := signups.Create(ctx, s.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)

	_, err = slots.DeleteByIDAndOwner(ctx, s.ID, 2)
	assert.ErrorIs(t, err, ErrForbidden)

	deleted, err := slots.DeleteByIDAndOwner(ctx, s.ID, 1)
	require.NoError(t, err)
	require.Len(t, deleted.Signups, 1)
	assert.Equal(t, "ada@example.com", deleted.Signups[0].Email)

	_, err = slots.GetByID(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	// the e-mail is free again once its slot is gone
	other := createSlot(t, slots, 1, now.Add(time.Hour), 3)
	_, _, err = signups.Create(ctx, other.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	assert.NoError(t, err)
}

func TestSetAttendance(t *testing.T) {
	db := newTestDB(t)
	slots, signups := NewSlotRepo(db), NewSignupRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	s := createSlot(t, slots, 1, now.Add(time.Hour), 3)
	g, _, err := signups.Create(ctx, s.ID, model.SignupInput{FullName: "Ada", Email: "ada@example.com"}, now)
	require.NoError(t, err)

	_, err = signups.SetAttendance(ctx, g.ID, 2, true)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = signups.SetAttendance(ctx, 999, 1, true)
	assert.ErrorIs(t, err, ErrSignupNotFound)

	for i := 0; i < 2; i++ {
		got, err := signups.SetAttendance(ctx, g.ID, 1, true)
		require.NoError(t, err)
		assert.True(t, got.Attended)
	}
	got, err := signups.SetAttendance(ctx, g.ID, 1, false)
	require.NoError(t, err)
	assert.False(t, got.Attended)
}
