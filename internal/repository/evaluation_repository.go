package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

// ErrEvaluationNotFound is returned when no scorecard exists for the
// application and evaluator.
var ErrEvaluationNotFound = errors.New("evaluation not found")

// EvaluationRepo stores interview scorecards, one per application and
// evaluator.
type EvaluationRepo struct {
	db *sql.DB
}

func NewEvaluationRepo(db *sql.DB) *EvaluationRepo { return &EvaluationRepo{db: db} }

const evaluationColumns = `id, interview_id, application_id, evaluator_id, notes, decision, rubric_scores, updated_at`

func scanEvaluation(sc scanner) (model.Evaluation, error) {
	var (
		e        model.Evaluation
		decision sql.NullString
		scores   []byte
	)
	if err := sc.Scan(&e.ID, &e.InterviewID, &e.ApplicationID, &e.EvaluatorID, &e.Notes, &decision, &scores, &e.UpdatedAt); err != nil {
		return e, err
	}
	if decision.Valid && decision.String != "" {
		d := model.Decision(decision.String)
		e.Decision = &d
	}
	e.RubricScores = map[model.RubricCategory]int{}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &e.RubricScores); err != nil {
			return e, err
		}
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// ListByInterview returns every evaluation recorded for the interview.
func (r *EvaluationRepo) ListByInterview(ctx context.Context, interviewID uint64) ([]model.Evaluation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE interview_id = ? ORDER BY application_id ASC, evaluator_id ASC`, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the evaluation stored for the pair.
func (r *EvaluationRepo) Get(ctx context.Context, applicationID, evaluatorID uint64) (*model.Evaluation, error) {
	e, err := scanEvaluation(r.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE application_id = ? AND evaluator_id = ?`, applicationID, evaluatorID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEvaluationNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Upsert creates or overwrites the evaluation keyed by (ApplicationID,
// EvaluatorID). The application must belong to e.InterviewID. ID and
// UpdatedAt are populated on success.
func (r *EvaluationRepo) Upsert(ctx context.Context, e *model.Evaluation) error {
	scores := e.RubricScores
	if scores == nil {
		scores = map[model.RubricCategory]int{}
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	var decision any
	if e.Decision != nil {
		decision = string(*e.Decision)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE id = ? AND interview_id = ?`, e.ApplicationID, e.InterviewID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return ErrApplicationNotFound
	}

	now := time.Now().UTC()
	var id uint64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM evaluations WHERE application_id = ? AND evaluator_id = ?`, e.ApplicationID, e.EvaluatorID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO evaluations (interview_id, application_id, evaluator_id, notes, decision, rubric_scores, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.InterviewID, e.ApplicationID, e.EvaluatorID, e.Notes, decision, string(raw), now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		lid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint64(lid)
	case err != nil:
		return err
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE evaluations SET notes = ?, decision = ?, rubric_scores = ?, updated_at = ? WHERE id = ?`,
			e.Notes, decision, string(raw), now, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	e.ID = id
	e.RubricScores = scores
	e.UpdatedAt = now
	return nil
}
