package model

import "time"

// Interview is a recruiting interview session that evaluations are recorded
// against.
type Interview struct {
	ID        uint64           `json:"id"`
	Title     string           `json:"title"`
	Groups    []InterviewGroup `json:"groups"`
	CreatedAt time.Time        `json:"createdAt"`
}

// InterviewGroup is a panel within an interview.
type InterviewGroup struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Application is a candidate's application interviewed in a group.
type Application struct {
	ID             uint64    `json:"id"`
	InterviewID    uint64    `json:"interviewId"`
	GroupID        uint64    `json:"groupId"`
	CandidateName  string    `json:"candidateName"`
	CandidateEmail string    `json:"candidateEmail"`
	CreatedAt      time.Time `json:"createdAt"`
}

// InterviewInput creates an interview with named groups.
type InterviewInput struct {
	Title  string   `json:"title"`
	Groups []string `json:"groups"`
}

// ApplicationInput adds an application to an interview group.
type ApplicationInput struct {
	GroupID        uint64 `json:"groupId"`
	CandidateName  string `json:"candidateName"`
	CandidateEmail string `json:"candidateEmail"`
}
