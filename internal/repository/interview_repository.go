package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

var (
	ErrInterviewNotFound   = errors.New("interview not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrGroupNotFound       = errors.New("interview group not found")
)

// InterviewRepo manages interviews, their groups and applications.
type InterviewRepo struct {
	db *sql.DB
}

func NewInterviewRepo(db *sql.DB) *InterviewRepo { return &InterviewRepo{db: db} }

// Create inserts an interview with its groups in one transaction.
func (r *InterviewRepo) Create(ctx context.Context, in model.InterviewInput) (*model.Interview, error) {
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

	now := time.Now().UTC()
	title := strings.TrimSpace(in.Title)
	res, err := tx.ExecContext(ctx, `INSERT INTO interviews (title, created_at) VALUES (?, ?)`, title, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	iv := &model.Interview{ID: uint64(id), Title: title, Groups: []model.InterviewGroup{}, CreatedAt: now}
	for _, name := range in.Groups {
		name = strings.TrimSpace(name)
		res, err := tx.ExecContext(ctx, `INSERT INTO interview_groups (interview_id, name) VALUES (?, ?)`, iv.ID, name)
		if err != nil {
			return nil, err
		}
		gid, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		iv.Groups = append(iv.Groups, model.InterviewGroup{ID: uint64(gid), Name: name})
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return iv, nil
}

// GetByID returns an interview with its groups in creation order.
func (r *InterviewRepo) GetByID(ctx context.Context, id uint64) (*model.Interview, error) {
	var iv model.Interview
	err := r.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM interviews WHERE id = ?`, id).
		Scan(&iv.ID, &iv.Title, &iv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInterviewNotFound
		}
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM interview_groups WHERE interview_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	iv.Groups = []model.InterviewGroup{}
	for rows.Next() {
		var g model.InterviewGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		iv.Groups = append(iv.Groups, g)
	}
	return &iv, rows.Err()
}

// CreateApplication adds an application to one of the interview's groups.
func (r *InterviewRepo) CreateApplication(ctx context.Context, interviewID uint64, in model.ApplicationInput) (*model.Application, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interview_groups WHERE id = ? AND interview_id = ?`, in.GroupID, interviewID).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrGroupNotFound
	}
	now := time.Now().UTC()
	a := &model.Application{
		InterviewID:    interviewID,
		GroupID:        in.GroupID,
		CandidateName:  strings.TrimSpace(in.CandidateName),
		CandidateEmail: strings.ToLower(strings.TrimSpace(in.CandidateEmail)),
		CreatedAt:      now,
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (interview_id, group_id, candidate_name, candidate_email, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.InterviewID, a.GroupID, a.CandidateName, a.CandidateEmail, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	a.ID = uint64(id)
	return a, nil
}

// ListApplications returns the interview's applications, restricted to
// groupIDs when any are given, ordered by id.
func (r *InterviewRepo) ListApplications(ctx context.Context, interviewID uint64, groupIDs []uint64) ([]model.Application, error) {
	q := `SELECT id, interview_id, group_id, candidate_name, candidate_email, created_at FROM applications WHERE interview_id = ?`
	args := []any{interviewID}
	if len(groupIDs) > 0 {
		q += ` AND group_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(groupIDs)), ",") + `)`
		for _, g := range groupIDs {
			args = append(args, g)
		}
	}
	q += ` ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Application{}
	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.InterviewID, &a.GroupID, &a.CandidateName, &a.CandidateEmail, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
