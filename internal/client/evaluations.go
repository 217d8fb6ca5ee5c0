package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

// DefaultSaveConcurrency caps the upserts SaveAll runs at once.
const DefaultSaveConcurrency = 4

// EvaluationKey identifies one scorecard.
type EvaluationKey struct {
	ApplicationID uint64
	EvaluatorID   uint64
}

// EvaluationPatch is a local edit. Nil fields are left alone. A score of 0
// removes that category.
type EvaluationPatch struct {
	Notes         *string
	Decision      *model.Decision
	ClearDecision bool
	RubricScores  map[model.RubricCategory]int
}

type SaveFailure struct {
	ApplicationID uint64
	Err           error
}

// SaveOutcome is the result of SaveAll, in application order.
type SaveOutcome struct {
	Succeeded []uint64
	Failed    []SaveFailure
}

// Err is the single alert for a batch, nil when every save succeeded.
func (o SaveOutcome) Err() error {
	if len(o.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("failed to save %d evaluation(s)", len(o.Failed))
}

// EvaluationRecorder buffers one evaluator's scorecards for one interview.
type EvaluationRecorder struct {
	c           *Client
	interviewID uint64
	evaluatorID uint64
	Concurrency int

	mu        sync.Mutex
	interview *model.Interview
	apps      []model.Application
	buf       map[EvaluationKey]model.Evaluation
}

func NewEvaluationRecorder(c *Client, interviewID, evaluatorID uint64) *EvaluationRecorder {
	return &EvaluationRecorder{
		c:           c,
		interviewID: interviewID,
		evaluatorID: evaluatorID,
		Concurrency: DefaultSaveConcurrency,
		buf:         map[EvaluationKey]model.Evaluation{},
	}
}

func (r *EvaluationRecorder) key(applicationID uint64) EvaluationKey {
	return EvaluationKey{ApplicationID: applicationID, EvaluatorID: r.evaluatorID}
}

// Load fetches the interview, its applications (optionally limited to
// groupIDs) and the evaluator's saved scorecards. Local edits are replaced.
func (r *EvaluationRecorder) Load(ctx context.Context, groupIDs ...uint64) error {
	iv, err := r.c.GetInterview(ctx, r.interviewID)
	if err != nil {
		return err
	}
	apps, err := r.c.ListApplications(ctx, r.interviewID, groupIDs...)
	if err != nil {
		return err
	}
	evals, err := r.c.ListEvaluations(ctx, r.interviewID)
	if err != nil {
		return err
	}
	inSet := make(map[uint64]bool, len(apps))
	for _, a := range apps {
		inSet[a.ID] = true
	}
	buf := map[EvaluationKey]model.Evaluation{}
	for _, e := range evals {
		if e.EvaluatorID != r.evaluatorID || !inSet[e.ApplicationID] {
			continue
		}
		buf[r.key(e.ApplicationID)] = e.Clone()
	}

	r.mu.Lock()
	r.interview, r.apps, r.buf = iv, apps, buf
	r.mu.Unlock()
	return nil
}

// Interview is the loaded interview, nil before Load.
func (r *EvaluationRecorder) Interview() *model.Interview {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interview
}

func (r *EvaluationRecorder) Applications() []model.Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Application, len(r.apps))
	copy(out, r.apps)
	return out
}

// GetEvaluation returns the buffered scorecard or the empty default.
func (r *EvaluationRecorder) GetEvaluation(applicationID uint64) model.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(applicationID)
}

func (r *EvaluationRecorder) get(applicationID uint64) model.Evaluation {
	if e, ok := r.buf[r.key(applicationID)]; ok {
		return e.Clone()
	}
	return model.EmptyEvaluation(r.interviewID, applicationID, r.evaluatorID)
}

// UpdateEvaluation merges p into the buffered scorecard. Nothing is sent.
func (r *EvaluationRecorder) UpdateEvaluation(applicationID uint64, p EvaluationPatch) (model.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.get(applicationID)
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	switch {
	case p.ClearDecision:
		e.Decision = nil
	case p.Decision != nil:
		d := *p.Decision
		e.Decision = &d
	}
	for c, v := range p.RubricScores {
		if v == 0 && c.Valid() {
			delete(e.RubricScores, c)
			continue
		}
		e.RubricScores[c] = v
	}
	if err := model.ValidateEvaluation(e.Decision, e.RubricScores); err != nil {
		return model.Evaluation{}, err
	}
	r.buf[r.key(applicationID)] = e
	return e.Clone(), nil
}

// SaveEvaluation upserts one buffered scorecard.
func (r *EvaluationRecorder) SaveEvaluation(ctx context.Context, applicationID uint64) (*model.Evaluation, error) {
	in := r.GetEvaluation(applicationID).Input()
	saved, err := r.c.UpsertEvaluation(ctx, r.interviewID, in)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	cur, ok := r.buf[r.key(applicationID)]
	// keep edits made while the request was in flight
	if !ok || sameContent(cur, in) {
		r.buf[r.key(applicationID)] = saved.Clone()
	}
	r.mu.Unlock()
	return saved, nil
}

func sameContent(e model.Evaluation, in model.EvaluationInput) bool {
	if e.Notes != in.Notes || len(e.RubricScores) != len(in.RubricScores) {
		return false
	}
	if (e.Decision == nil) != (in.Decision == nil) || (e.Decision != nil && *e.Decision != *in.Decision) {
		return false
	}
	for k, v := range e.RubricScores {
		if in.RubricScores[k] != v {
			return false
		}
	}
	return true
}

// SaveAll upserts every buffered scorecard of the current application set
// concurrently and waits for all of them. There is no retry and no
// rollback of the ones that succeeded.
func (r *EvaluationRecorder) SaveAll(ctx context.Context) SaveOutcome {
	r.mu.Lock()
	var ids []uint64
	for _, a := range r.apps {
		if _, ok := r.buf[r.key(a.ID)]; ok {
			ids = append(ids, a.ID)
		}
	}
	limit := r.Concurrency
	r.mu.Unlock()
	if limit <= 0 {
		limit = DefaultSaveConcurrency
	}

	errs := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			_, errs[i] = r.SaveEvaluation(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var out SaveOutcome
	for i, id := range ids {
		if errs[i] != nil {
			out.Failed = append(out.Failed, SaveFailure{ApplicationID: id, Err: errs[i]})
			continue
		}
		out.Succeeded = append(out.Succeeded, id)
	}
	return out
}
