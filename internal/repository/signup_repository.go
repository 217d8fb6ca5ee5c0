package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/displaytime"
	"github.com/iliyamo/recruiting-portal/internal/model"
)

var (
	ErrSignupNotFound = errors.New("signup not found")
	// ErrSlotFull is returned when every seat of the slot is taken.
	ErrSlotFull = errors.New("meeting slot is full")
	// ErrAlreadySignedUp is returned when the e-mail already holds a signup on
	// a slot that has not completed.
	ErrAlreadySignedUp = errors.New("already signed up")
	// ErrSlotStarted is returned for signups to a slot whose start has passed.
	ErrSlotStarted = errors.New("meeting slot has already started")
)

// SignupRepo manages the seats taken in meeting slots.
type SignupRepo struct {
	db *sql.DB
}

func NewSignupRepo(db *sql.DB) *SignupRepo { return &SignupRepo{db: db} }

const signupColumns = `id, slot_id, full_name, email, student_id, attended, created_at`

func scanSignup(sc scanner) (model.Signup, error) {
	var (
		g   model.Signup
		sid sql.NullString
	)
	if err := sc.Scan(&g.ID, &g.SlotID, &g.FullName, &g.Email, &sid, &g.Attended, &g.CreatedAt); err != nil {
		return g, err
	}
	g.StudentID = sid.String
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

// listSignups loads the signups of the given slots keyed by slot id, each
// list in signup order.
func listSignups(ctx context.Context, q queryer, slotIDs []uint64) (map[uint64][]model.Signup, error) {
	out := make(map[uint64][]model.Signup, len(slotIDs))
	if len(slotIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(slotIDs))
	for i, id := range slotIDs {
		args[i] = id
	}
	query := `SELECT ` + signupColumns + ` FROM meeting_signups WHERE slot_id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(slotIDs)), ",") + `) ORDER BY id ASC`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		g, err := scanSignup(rows)
		if err != nil {
			return nil, err
		}
		out[g.SlotID] = append(out[g.SlotID], g)
	}
	return out, rows.Err()
}

// hasActiveSignup reports whether email holds a signup on a slot that has
// not completed at now. Signups on completed slots do not count.
func hasActiveSignup(ctx context.Context, tx *sql.Tx, email string, now time.Time) (bool, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT s.start_time, s.end_time FROM meeting_signups g JOIN meeting_slots s ON s.id = g.slot_id WHERE g.email = ?`, email)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var start time.Time
		var end sql.NullTime
		if err := rows.Scan(&start, &end); err != nil {
			return false, err
		}
		if displaytime.StatusAt(start, nullTimePtr(end), now) != displaytime.StatusCompleted {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Create takes one seat of the slot for in. Within a single transaction it
// locks the slot row, rejects slots that have started, that are full or
// where the e-mail already holds a signup, then inserts. It returns the
// new signup and the slot with its updated signup count.
func (r *SignupRepo) Create(ctx context.Context, slotID uint64, in model.SignupInput, now time.Time) (*model.Signup, *model.MeetingSlot, error) {
	in = in.Normalize()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, nil, err
	}
	if slot.StartTime.Before(now) {
		return nil, nil, ErrSlotStarted
	}
	taken, err := countSignups(ctx, tx, slotID)
	if err != nil {
		return nil, nil, err
	}
	slot.SignupCount = taken
	if taken >= slot.Capacity {
		return nil, nil, ErrSlotFull
	}
	active, err := hasActiveSignup(ctx, tx, in.Email, now)
	if err != nil {
		return nil, nil, err
	}
	if active {
		return nil, nil, ErrAlreadySignedUp
	}

	var studentID any
	if in.StudentID != "" {
		studentID = in.StudentID
	}
	created := now.UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO meeting_signups (slot_id, full_name, email, student_id, attended, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		slotID, in.FullName, in.Email, studentID, false, created)
	if err != nil {
		return nil, nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	slot.SignupCount++

	return &model.Signup{
		ID:        uint64(id),
		SlotID:    slotID,
		FullName:  in.FullName,
		Email:     in.Email,
		StudentID: in.StudentID,
		CreatedAt: created,
	}, &slot, nil
}

// SetAttendance records whether a signup attended. Only the owner of the
// signup's slot may change it. Setting the current value again succeeds.
func (r *SignupRepo) SetAttendance(ctx context.Context, signupID, ownerID uint64, attended bool) (*model.Signup, error) {
	var owner uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT s.owner_id FROM meeting_signups g JOIN meeting_slots s ON s.id = g.slot_id WHERE g.id = ?`,
		signupID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignupNotFound
		}
		return nil, err
	}
	if owner != ownerID {
		return nil, ErrForbidden
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE meeting_signups SET attended = ? WHERE id = ?`, attended, signupID); err != nil {
		return nil, err
	}
	g, err := scanSignup(r.db.QueryRowContext(ctx, `SELECT `+signupColumns+` FROM meeting_signups WHERE id = ?`, signupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSignupNotFound
		}
		return nil, err
	}
	return &g, nil
}
