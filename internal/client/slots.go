package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
	"github.com/iliyamo/recruiting-portal/internal/model"
)

// Scope selects which slot list a manager mirrors.
type Scope int

const (
	ScopePublic Scope = iota // GET /meeting-slots, counts only
	ScopeMember              // GET /member/meeting-slots, the caller's slots with signups
)

// Confirmer asks the user a yes/no question.
type Confirmer func(prompt string) bool

// SlotManager mirrors one slot list and performs slot mutations. Every
// successful mutation is followed by a full reload of the list. A failed
// call leaves the cached list untouched.
type SlotManager struct {
	c     *Client
	scope Scope
	Now   func() time.Time

	mu      sync.Mutex
	slots   []model.MeetingSlot
	editing uint64
}

func NewSlotManager(c *Client, scope Scope) *SlotManager {
	return &SlotManager{c: c, scope: scope, Now: time.Now}
}

// ListSlots fetches the list and replaces the cache wholesale.
func (m *SlotManager) ListSlots(ctx context.Context) ([]model.MeetingSlot, error) {
	var (
		slots []model.MeetingSlot
		err   error
	)
	if m.scope == ScopeMember {
		slots, err = m.c.ListMemberSlots(ctx)
	} else {
		slots, err = m.c.ListPublicSlots(ctx)
	}
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.slots = slots
	m.mu.Unlock()
	return m.Slots(), nil
}

// Slots returns a copy of the cached list.
func (m *SlotManager) Slots() []model.MeetingSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.MeetingSlot, len(m.slots))
	copy(out, m.slots)
	return out
}

// OpenSlots is the cached list narrowed to slots starting at or after now.
func (m *SlotManager) OpenSlots(now time.Time) []model.MeetingSlot {
	return model.CurrentAndFutureSlots(m.Slots(), now)
}

// Slot looks up a cached slot.
func (m *SlotManager) Slot(id uint64) (model.MeetingSlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ID == id {
			return s, true
		}
	}
	return model.MeetingSlot{}, false
}

// reload refreshes the cache after a mutation that already succeeded.
func (m *SlotManager) reload(ctx context.Context) error {
	_, err := m.ListSlots(ctx)
	return err
}

// CreateSlot validates in, creates the slot and reloads. The created slot is
// returned even when the reload fails.
func (m *SlotManager) CreateSlot(ctx context.Context, in model.SlotInput) (*model.MeetingSlot, error) {
	in = in.Normalize()
	if err := model.ValidateSlotInput(in, m.Now()); err != nil {
		return nil, err
	}
	s, err := m.c.CreateSlot(ctx, in)
	if err != nil {
		return nil, err
	}
	return s, m.reload(ctx)
}

// UpdateSlot validates in, updates the slot and reloads.
func (m *SlotManager) UpdateSlot(ctx context.Context, id uint64, in model.SlotInput) (*model.MeetingSlot, error) {
	in = in.Normalize()
	if err := model.ValidateSlotInput(in, m.Now()); err != nil {
		return nil, err
	}
	s, err := m.c.UpdateSlot(ctx, id, in)
	if err != nil {
		return nil, err
	}
	return s, m.reload(ctx)
}

// EditSession is an open edit of one slot. At most one exists per manager.
type EditSession struct {
	Slot  model.MeetingSlot
	Input model.SlotInput

	m    *SlotManager
	done bool
}

// BeginEdit opens an edit session seeded from the cached slot.
func (m *SlotManager) BeginEdit(id uint64) (*EditSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editing != 0 {
		return nil, ErrEditInProgress
	}
	for _, s := range m.slots {
		if s.ID == id {
			m.editing = id
			return &EditSession{
				Slot:  s,
				Input: model.SlotInput{Location: s.Location, StartTime: s.StartTime, EndTime: s.EndTime, Capacity: s.Capacity},
				m:     m,
			}, nil
		}
	}
	return nil, ErrSlotNotFound
}

// Submit sends Input. The session stays open when the update fails so the
// input can be corrected.
func (e *EditSession) Submit(ctx context.Context) (*model.MeetingSlot, error) {
	if e.done {
		return nil, fmt.Errorf("edit of slot %d already closed", e.Slot.ID)
	}
	s, err := e.m.UpdateSlot(ctx, e.Slot.ID, e.Input)
	if s == nil {
		return nil, err
	}
	e.Cancel()
	return s, err
}

// Cancel closes the session without sending anything.
func (e *EditSession) Cancel() {
	if e.done {
		return
	}
	e.done = true
	e.m.mu.Lock()
	if e.m.editing == e.Slot.ID {
		e.m.editing = 0
	}
	e.m.mu.Unlock()
}

// DeletePrompt is the confirmation question shown before deleting s.
func DeletePrompt(s model.MeetingSlot) string {
	when := displaytime.Format(s.StartTime)
	if n := s.Taken(); n > 0 {
		return fmt.Sprintf("Delete the coffee chat at %s on %s? %d signup(s) will be cancelled and cancellation emails will be sent.", s.Location, when, n)
	}
	return fmt.Sprintf("Delete the coffee chat at %s on %s? Nobody has signed up yet.", s.Location, when)
}

// DeletePrompt is the package DeletePrompt for a cached slot.
func (m *SlotManager) DeletePrompt(id uint64) (string, error) {
	s, ok := m.Slot(id)
	if !ok {
		return "", ErrSlotNotFound
	}
	return DeletePrompt(s), nil
}

// DeleteSlot asks confirm and, when confirmed, deletes the slot and
// reloads. Declining sends nothing.
func (m *SlotManager) DeleteSlot(ctx context.Context, id uint64, confirm Confirmer) (*DeleteResult, error) {
	prompt, err := m.DeletePrompt(id)
	if err != nil {
		return nil, err
	}
	if confirm == nil || !confirm(prompt) {
		return nil, ErrDeleteNotConfirmed
	}
	res, err := m.c.DeleteSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.editing == id {
		m.editing = 0
	}
	m.mu.Unlock()
	return res, m.reload(ctx)
}

// Signup validates in and signs up for the slot. A slot the cache already
// knows to be full is rejected with ErrSlotFull without a request.
func (m *SlotManager) Signup(ctx context.Context, slotID uint64, in model.SignupInput) (*model.SignupResult, error) {
	in = in.Normalize()
	if err := model.ValidateSignupInput(in); err != nil {
		return nil, err
	}
	if s, ok := m.Slot(slotID); ok && s.Full() {
		return nil, ErrSlotFull
	}
	res, err := m.c.Signup(ctx, slotID, in)
	if err != nil {
		return nil, err
	}
	return res, m.reload(ctx)
}

// SetAttendance marks a signup attended or not and reloads.
func (m *SlotManager) SetAttendance(ctx context.Context, signupID uint64, attended bool) (*model.Signup, error) {
	g, err := m.c.SetAttendance(ctx, signupID, attended)
	if err != nil {
		return nil, err
	}
	return g, m.reload(ctx)
}
