package model

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ValidationError reports an input field that failed validation. It is
// produced before any request is sent and again by the server.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SlotStartWindow bounds how far a slot start may be from now.
const SlotStartWindow = 365 * 24 * time.Hour

// ValidateSlotInput checks a slot create or update body.
func ValidateSlotInput(in SlotInput, now time.Time) error {
	if strings.TrimSpace(in.Location) == "" {
		return invalid("location", "location is required")
	}
	if in.Capacity < MinSlotCapacity || in.Capacity > MaxSlotCapacity {
		return invalid("capacity", "capacity must be between %d and %d", MinSlotCapacity, MaxSlotCapacity)
	}
	if in.StartTime.IsZero() {
		return invalid("startTime", "start time is required")
	}
	if in.StartTime.Before(now.Add(-SlotStartWindow)) || in.StartTime.After(now.Add(SlotStartWindow)) {
		return invalid("startTime", "start time must be within one year of today")
	}
	if in.EndTime != nil && !in.EndTime.After(in.StartTime) {
		return invalid("endTime", "end time must be after start time")
	}
	return nil
}

var studentIDPattern = regexp.MustCompile(`^[0-9]{6,10}$`)

// ValidateSignupInput checks a public signup body.
func ValidateSignupInput(in SignupInput) error {
	in = in.Normalize()
	if in.FullName == "" {
		return invalid("fullName", "full name is required")
	}
	if in.Email == "" {
		return invalid("email", "email is required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return invalid("email", "email is not a valid address")
	}
	if in.StudentID != "" && !studentIDPattern.MatchString(in.StudentID) {
		return invalid("studentId", "student id must be 6 to 10 digits")
	}
	return nil
}

// ValidateEvaluation checks decision and rubric scores.
func ValidateEvaluation(decision *Decision, scores map[RubricCategory]int) error {
	if decision != nil && !decision.Valid() {
		return invalid("decision", "unknown decision %q", string(*decision))
	}
	for _, c := range RubricCategories {
		v, ok := scores[c]
		if ok && (v < MinRubricScore || v > MaxRubricScore) {
			return invalid("rubricScores", "%s score must be between %d and %d", c, MinRubricScore, MaxRubricScore)
		}
	}
	var unknown []string
	for c := range scores {
		if !c.Valid() {
			unknown = append(unknown, string(c))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return invalid("rubricScores", "unknown rubric category %q", unknown[0])
	}
	return nil
}
