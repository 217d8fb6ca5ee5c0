package model

import (
	"strings"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
)

// Capacity bounds of a meeting slot.
const (
	MinSlotCapacity = 1
	MaxSlotCapacity = 10
)

// MeetingSlot is a capacity-limited coffee chat published by a member.
//
// Public listings carry SignupCount but no Signups; member listings carry
// both.
type MeetingSlot struct {
	ID          uint64     `json:"id"`                // meeting_slots.id
	OwnerID     uint64     `json:"ownerId,omitempty"` // meeting_slots.owner_id
	Location    string     `json:"location"`          // meeting_slots.location
	StartTime   time.Time  `json:"startTime"`         // meeting_slots.start_time (UTC)
	EndTime     *time.Time `json:"endTime,omitempty"` // meeting_slots.end_time (nullable)
	Capacity    int        `json:"capacity"`          // meeting_slots.capacity
	SignupCount int        `json:"signupCount"`
	Signups     []Signup   `json:"signups,omitempty"` // ordered by signup time
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Taken is the number of seats in use.
func (s MeetingSlot) Taken() int {
	if n := len(s.Signups); n > s.SignupCount {
		return n
	}
	return s.SignupCount
}

// Remaining is capacity minus signups, never negative.
func (s MeetingSlot) Remaining() int {
	if r := s.Capacity - s.Taken(); r > 0 {
		return r
	}
	return 0
}

// Full reports whether no seats remain.
func (s MeetingSlot) Full() bool { return s.Remaining() == 0 }

// Status labels the slot relative to now for display.
func (s MeetingSlot) Status(now time.Time) displaytime.Status {
	return displaytime.StatusAt(s.StartTime, s.EndTime, now)
}

// Signup is a person's reservation of one seat in a slot.
type Signup struct {
	ID        uint64    `json:"id"`                  // meeting_signups.id
	SlotID    uint64    `json:"slotId"`              // meeting_signups.slot_id
	FullName  string    `json:"fullName"`            // meeting_signups.full_name
	Email     string    `json:"email"`               // meeting_signups.email (lower-cased)
	StudentID string    `json:"studentId,omitempty"` // meeting_signups.student_id (nullable)
	Attended  bool      `json:"attended"`            // meeting_signups.attended
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayStudentID renders an absent student id as "-".
func (s Signup) DisplayStudentID() string {
	if strings.TrimSpace(s.StudentID) == "" {
		return "-"
	}
	return s.StudentID
}

// SlotInput is the body of slot create and update requests.
type SlotInput struct {
	Location  string     `json:"location"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Capacity  int        `json:"capacity"`
}

// Normalize trims the location and converts times to UTC.
func (in SlotInput) Normalize() SlotInput {
	out := in
	out.Location = strings.TrimSpace(in.Location)
	out.StartTime = in.StartTime.UTC()
	if in.EndTime != nil {
		e := in.EndTime.UTC()
		out.EndTime = &e
	}
	return out
}

// SignupInput is the body of a public signup request.
type SignupInput struct {
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	StudentID string `json:"studentId,omitempty"`
}

// Normalize trims every field and lower-cases the e-mail.
func (in SignupInput) Normalize() SignupInput {
	return SignupInput{
		FullName:  strings.TrimSpace(in.FullName),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		StudentID: strings.TrimSpace(in.StudentID),
	}
}

// SignupResult is returned by a successful signup. NeedsAccount is advisory:
// it is true when no portal account exists for the e-mail.
type SignupResult struct {
	Message      string `json:"message"`
	NeedsAccount bool   `json:"needsAccount"`
}

// CurrentAndFutureSlots keeps slots starting at or after now, preserving
// order.
func CurrentAndFutureSlots(slots []MeetingSlot, now time.Time) []MeetingSlot {
	out := make([]MeetingSlot, 0, len(slots))
	for _, s := range slots {
		if !s.StartTime.Before(now) {
			out = append(out, s)
		}
	}
	return out
}
