package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
)

var now = time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)

func validSlot() SlotInput {
	return SlotInput{Location: "Room A", StartTime: now.Add(24 * time.Hour), Capacity: 2}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)
	return ve.Field
}

func TestValidateSlotInput(t *testing.T) {
	require.NoError(t, ValidateSlotInput(validSlot(), now))

	in := validSlot()
	in.Location = "   "
	assert.Equal(t, "location", fieldOf(t, ValidateSlotInput(in, now)))

	for _, c := range []int{0, 11, -1} {
		in = validSlot()
		in.Capacity = c
		assert.Equal(t, "capacity", fieldOf(t, ValidateSlotInput(in, now)))
	}

	in = validSlot()
	in.StartTime = now.Add(400 * 24 * time.Hour)
	assert.Equal(t, "startTime", fieldOf(t, ValidateSlotInput(in, now)))

	in = validSlot()
	in.StartTime = now.Add(-400 * 24 * time.Hour)
	assert.Equal(t, "startTime", fieldOf(t, ValidateSlotInput(in, now)))

	in = validSlot()
	end := in.StartTime
	in.EndTime = &end
	assert.Equal(t, "endTime", fieldOf(t, ValidateSlotInput(in, now)))

	end = in.StartTime.Add(-time.Minute)
	assert.Equal(t, "endTime", fieldOf(t, ValidateSlotInput(in, now)))

	end = in.StartTime.Add(30 * time.Minute)
	assert.NoError(t, ValidateSlotInput(in, now))
}

func TestValidateSignupInput(t *testing.T) {
	ok := SignupInput{FullName: "Ada Lovelace", Email: "Ada@Example.com"}
	require.NoError(t, ValidateSignupInput(ok))

	withID := ok
	withID.StudentID = "12345678"
	require.NoError(t, ValidateSignupInput(withID))

	cases := map[string]SignupInput{
		"fullName":  {FullName: " ", Email: "a@b.co"},
		"email":     {FullName: "A", Email: "not-an-email"},
		"studentId": {FullName: "A", Email: "a@b.co", StudentID: "12ab56"},
	}
	for want, in := range cases {
		assert.Equal(t, want, fieldOf(t, ValidateSignupInput(in)))
	}

	named := SignupInput{FullName: "A", Email: "Ada <a@b.co>"}
	assert.Equal(t, "email", fieldOf(t, ValidateSignupInput(named)))

	short := SignupInput{FullName: "A", Email: "a@b.co", StudentID: "12345"}
	assert.Equal(t, "studentId", fieldOf(t, ValidateSignupInput(short)))
}

func TestSignupNormalize(t *testing.T) {
	in := SignupInput{FullName: "  Ada ", Email: " ADA@Example.COM ", StudentID: " 123456 "}.Normalize()
	assert.Equal(t, "Ada", in.FullName)
	assert.Equal(t, "ada@example.com", in.Email)
	assert.Equal(t, "123456", in.StudentID)
}

func TestRemainingAndFull(t *testing.T) {
	s := MeetingSlot{Capacity: 2}
	assert.Equal(t, 2, s.Remaining())
	assert.False(t, s.Full())

	s.Signups = []Signup{{ID: 1}}
	assert.Equal(t, 1, s.Remaining())

	s.Signups = append(s.Signups, Signup{ID: 2})
	assert.Equal(t, 0, s.Remaining())
	assert.True(t, s.Full())

	public := MeetingSlot{Capacity: 3, SignupCount: 3}
	assert.True(t, public.Full())
}

func TestCurrentAndFutureSlots(t *testing.T) {
	past := MeetingSlot{ID: 1, StartTime: now.Add(-time.Hour)}
	exact := MeetingSlot{ID: 2, StartTime: now}
	future := MeetingSlot{ID: 3, StartTime: now.Add(time.Hour)}

	got := CurrentAndFutureSlots([]MeetingSlot{past, exact, future}, now)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].ID)
	assert.Equal(t, uint64(3), got[1].ID)

	assert.Empty(t, CurrentAndFutureSlots(nil, now))
}

func TestSlotStatus(t *testing.T) {
	s := MeetingSlot{StartTime: now}
	assert.Equal(t, displaytime.StatusUpcoming, s.Status(now.Add(-time.Minute)))
	assert.Equal(t, displaytime.StatusActive, s.Status(now.Add(30*time.Minute)))
	assert.Equal(t, displaytime.StatusCompleted, s.Status(now.Add(2*time.Hour)))
}

func TestDisplayStudentID(t *testing.T) {
	assert.Equal(t, "-", Signup{}.DisplayStudentID())
	assert.Equal(t, "1234567", Signup{StudentID: "1234567"}.DisplayStudentID())
}

func TestValidateEvaluation(t *testing.T) {
	yes := DecisionYes
	require.NoError(t, ValidateEvaluation(&yes, map[RubricCategory]int{RubricLeadership: 5}))
	require.NoError(t, ValidateEvaluation(nil, nil))

	bad := Decision("STRONG_YES")
	assert.Equal(t, "decision", fieldOf(t, ValidateEvaluation(&bad, nil)))
	assert.Equal(t, "rubricScores", fieldOf(t, ValidateEvaluation(nil, map[RubricCategory]int{"charisma": 3})))
	assert.Equal(t, "rubricScores", fieldOf(t, ValidateEvaluation(nil, map[RubricCategory]int{RubricCuriosity: 6})))
	assert.Equal(t, "rubricScores", fieldOf(t, ValidateEvaluation(nil, map[RubricCategory]int{RubricCuriosity: 0})))
}

func TestValidateEvaluationReportsInCategoryOrder(t *testing.T) {
	scores := map[RubricCategory]int{
		"zeal":               2,
		RubricCuriosity:      9,
		"charisma":           3,
		RubricCommunication:  0,
		RubricProblemSolving: 4,
	}
	for i := 0; i < 20; i++ {
		err := ValidateEvaluation(nil, scores)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "communication score must be between 1 and 5", ve.Message)
	}

	delete(scores, RubricCommunication)
	delete(scores, RubricCuriosity)
	for i := 0; i < 20; i++ {
		err := ValidateEvaluation(nil, scores)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, `unknown rubric category "charisma"`, ve.Message)
	}
}

func TestEvaluationCloneIsDeep(t *testing.T) {
	d := DecisionNo
	e := Evaluation{Decision: &d, RubricScores: map[RubricCategory]int{RubricCommunication: 2}}
	c := e.Clone()
	*c.Decision = DecisionYes
	c.RubricScores[RubricCommunication] = 5

	assert.Equal(t, DecisionNo, *e.Decision)
	assert.Equal(t, 2, e.RubricScores[RubricCommunication])
}
