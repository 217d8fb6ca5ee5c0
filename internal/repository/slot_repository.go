package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

var (
	// ErrSlotNotFound indicates that no meeting slot has the requested id.
	ErrSlotNotFound = errors.New("meeting slot not found")
	// ErrCapacityBelowSignups is returned when an edit would shrink a slot
	// below the number of people already signed up.
	ErrCapacityBelowSignups = errors.New("capacity is below the current number of signups")
)

// SlotRepo manages meeting slots. Signups live in SignupRepo but are
// loaded alongside slots for member views.
type SlotRepo struct {
	db *sql.DB
}

func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// DB exposes the underlying handle for callers that need their own
// transaction.
func (r *SlotRepo) DB() *sql.DB { return r.db }

const slotColumns = `s.id, s.owner_id, s.location, s.start_time, s.end_time, s.capacity, s.created_at, s.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(sc scanner, extra ...any) (model.MeetingSlot, error) {
	var (
		s   model.MeetingSlot
		end sql.NullTime
	)
	dest := append([]any{&s.ID, &s.OwnerID, &s.Location, &s.StartTime, &end, &s.Capacity, &s.CreatedAt, &s.UpdatedAt}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return s, err
	}
	s.StartTime = s.StartTime.UTC()
	s.EndTime = nullTimePtr(end)
	return s, nil
}

// lockSlot takes the slot's row lock for the rest of tx. The no-op UPDATE
// blocks concurrent writers on MySQL/InnoDB and opens a write transaction
// on SQLite.
func lockSlot(ctx context.Context, tx *sql.Tx, id uint64) (model.MeetingSlot, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE meeting_slots SET updated_at = updated_at WHERE id = ?`, id); err != nil {
		return model.MeetingSlot{}, err
	}
	s, err := scanSlot(tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM meeting_slots s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrSlotNotFound
	}
	return s, err
}

func countSignups(ctx context.Context, q queryer, slotID uint64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM meeting_signups WHERE slot_id = ?`, slotID).Scan(&n)
	return n, err
}

// Create inserts a slot owned by s.OwnerID and populates ID and timestamps.
func (r *SlotRepo) Create(ctx context.Context, s *model.MeetingSlot) error {
	now := time.Now().UTC()
	var end any
	if s.EndTime != nil {
		end = s.EndTime.UTC()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO meeting_slots (owner_id, location, start_time, end_time, capacity, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.OwnerID, s.Location, s.StartTime.UTC(), end, s.Capacity, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	s.CreatedAt, s.UpdatedAt = now, now
	s.Signups = []model.Signup{}
	s.SignupCount = 0
	return nil
}

// GetByID returns a slot with its signups.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.MeetingSlot, error) {
	s, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM meeting_slots s WHERE s.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	signups, err := listSignups(ctx, r.db, []uint64{s.ID})
	if err != nil {
		return nil, err
	}
	s.Signups = signups[s.ID]
	s.SignupCount = len(s.Signups)
	return &s, nil
}

// ListAll returns every slot ordered by start time with signup counts but
// without signup details.
func (r *SlotRepo) ListAll(ctx context.Context) ([]model.MeetingSlot, error) {
	const q = `SELECT ` + slotColumns + `, COUNT(g.id)
               FROM meeting_slots s
               LEFT JOIN meeting_signups g ON g.slot_id = s.id
               GROUP BY s.id, s.owner_id, s.location, s.start_time, s.end_time, s.capacity, s.created_at, s.updated_at
               ORDER BY s.start_time ASC, s.id ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.MeetingSlot{}
	for rows.Next() {
		var n int
		s, err := scanSlot(rows, &n)
		if err != nil {
			return nil, err
		}
		s.SignupCount = n
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByOwner returns the owner's slots with their signups, ordered by
// start time.
func (r *SlotRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.MeetingSlot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM meeting_slots s WHERE s.owner_id = ? ORDER BY s.start_time ASC, s.id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	out := []model.MeetingSlot{}
	ids := []uint64{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	signups, err := listSignups(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Signups = signups[out[i].ID]
		if out[i].Signups == nil {
			out[i].Signups = []model.Signup{}
		}
		out[i].SignupCount = len(out[i].Signups)
	}
	return out, nil
}

// UpdateByIDAndOwner applies in to the slot when it belongs to ownerID.
// The slot row is locked while signups are counted so a concurrent signup
// cannot slip under a reduced capacity. ErrNoChange is returned, with the
// slot untouched, when in matches the stored values.
func (r *SlotRepo) UpdateByIDAndOwner(ctx context.Context, id, ownerID uint64, in model.SlotInput) (*model.MeetingSlot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cur, err := lockSlot(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cur.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	n, err := countSignups(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if in.Capacity < n {
		return nil, ErrCapacityBelowSignups
	}

	in = in.Normalize()
	if sameSlot(cur, in) {
		return nil, ErrNoChange
	}
	var end any
	if in.EndTime != nil {
		end = *in.EndTime
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE meeting_slots SET location = ?, start_time = ?, end_time = ?, capacity = ?, updated_at = ? WHERE id = ?`,
		in.Location, in.StartTime, end, in.Capacity, now, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r.GetByID(ctx, id)
}

func sameSlot(cur model.MeetingSlot, in model.SlotInput) bool {
	if cur.Location != in.Location || cur.Capacity != in.Capacity || !cur.StartTime.Equal(in.StartTime) {
		return false
	}
	switch {
	case cur.EndTime == nil && in.EndTime == nil:
		return true
	case cur.EndTime == nil || in.EndTime == nil:
		return false
	}
	return cur.EndTime.Equal(*in.EndTime)
}

// DeleteByIDAndOwner removes a slot and its signups in one transaction and
// returns the slot as it was, signups included, so callers can notify
// everyone who had signed up.
func (r *SlotRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID uint64) (*model.MeetingSlot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	s, err := lockSlot(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if s.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	signups, err := listSignups(ctx, tx, []uint64{id})
	if err != nil {
		return nil, err
	}
	s.Signups = signups[id]
	if s.Signups == nil {
		s.Signups = []model.Signup{}
	}
	s.SignupCount = len(s.Signups)

	if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_signups WHERE slot_id = ?`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_slots WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &s, nil
}
