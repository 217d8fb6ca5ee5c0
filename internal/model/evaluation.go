package model

import "time"

// Decision is an evaluator's hiring recommendation.
type Decision string

const (
	DecisionYes      Decision = "YES"
	DecisionMaybeYes Decision = "MAYBE_YES"
	DecisionUnsure   Decision = "UNSURE"
	DecisionMaybeNo  Decision = "MAYBE_NO"
	DecisionNo       Decision = "NO"
)

// Decisions lists every decision from most to least favourable.
var Decisions = []Decision{DecisionYes, DecisionMaybeYes, DecisionUnsure, DecisionMaybeNo, DecisionNo}

func (d Decision) Valid() bool {
	for _, v := range Decisions {
		if d == v {
			return true
		}
	}
	return false
}

// RubricCategory is one of the fixed scoring dimensions.
type RubricCategory string

const (
	RubricCommunication  RubricCategory = "communication"
	RubricProblemSolving RubricCategory = "problemSolving"
	RubricLeadership     RubricCategory = "leadership"
	RubricCuriosity      RubricCategory = "curiosity"
)

var RubricCategories = []RubricCategory{RubricCommunication, RubricProblemSolving, RubricLeadership, RubricCuriosity}

func (c RubricCategory) Valid() bool {
	for _, v := range RubricCategories {
		if c == v {
			return true
		}
	}
	return false
}

const (
	MinRubricScore = 1
	MaxRubricScore = 5
)

// Evaluation is one evaluator's scorecard for one application. The pair
// (ApplicationID, EvaluatorID) is unique.
type Evaluation struct {
	ID            uint64                 `json:"id,omitempty"`
	InterviewID   uint64                 `json:"interviewId"`
	ApplicationID uint64                 `json:"applicationId"`
	EvaluatorID   uint64                 `json:"evaluatorId"`
	Notes         string                 `json:"notes"`
	Decision      *Decision              `json:"decision"`
	RubricScores  map[RubricCategory]int `json:"rubricScores"`
	UpdatedAt     time.Time              `json:"updatedAt"`
}

// EmptyEvaluation is the default scorecard shown before anything is entered.
func EmptyEvaluation(interviewID, applicationID, evaluatorID uint64) Evaluation {
	return Evaluation{
		InterviewID:   interviewID,
		ApplicationID: applicationID,
		EvaluatorID:   evaluatorID,
		RubricScores:  map[RubricCategory]int{},
	}
}

// Clone returns a deep copy.
func (e Evaluation) Clone() Evaluation {
	out := e
	if e.Decision != nil {
		d := *e.Decision
		out.Decision = &d
	}
	out.RubricScores = make(map[RubricCategory]int, len(e.RubricScores))
	for k, v := range e.RubricScores {
		out.RubricScores[k] = v
	}
	return out
}

// EvaluationInput is the body of an evaluation upsert.
type EvaluationInput struct {
	ApplicationID uint64                 `json:"applicationId"`
	Notes         string                 `json:"notes"`
	Decision      *Decision              `json:"decision"`
	RubricScores  map[RubricCategory]int `json:"rubricScores"`
}

// Input converts an evaluation to its upsert body.
func (e Evaluation) Input() EvaluationInput {
	c := e.Clone()
	return EvaluationInput{
		ApplicationID: c.ApplicationID,
		Notes:         c.Notes,
		Decision:      c.Decision,
		RubricScores:  c.RubricScores,
	}
}
