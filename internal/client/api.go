package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

// Token is a bearer token with its expiry.
type Token struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Session is the answer to login and register.
type Session struct {
	User struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Access  Token `json:"access"`
	Refresh Token `json:"refresh"`
}

// Identity is the answer to /me.
type Identity struct {
	UserID uint64 `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// DeleteResult reports how many signups a slot deletion cancelled.
type DeleteResult struct {
	Message        string `json:"message"`
	CancelledCount int    `json:"cancelledCount"`
	Notified       int    `json:"notified"`
}

// Login exchanges credentials for a session and starts using its access
// token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Access.Token)
	return &s, nil
}

// RefreshAccess trades a refresh token for a new access token.
func (c *Client) RefreshAccess(ctx context.Context, refresh string) (*Token, error) {
	var out struct {
		Access Token `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-access", map[string]string{"refreshToken": refresh}, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Access.Token)
	return &out.Access, nil
}

func (c *Client) Logout(ctx context.Context, refresh string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": refresh}, nil)
}

func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ListPublicSlots returns open slots with counts only.
func (c *Client) ListPublicSlots(ctx context.Context) ([]model.MeetingSlot, error) {
	var out items[model.MeetingSlot]
	if err := c.do(ctx, http.MethodGet, "/meeting-slots", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ListMemberSlots returns the caller's slots with signups.
func (c *Client) ListMemberSlots(ctx context.Context) ([]model.MeetingSlot, error) {
	var out items[model.MeetingSlot]
	if err := c.do(ctx, http.MethodGet, "/member/meeting-slots", nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Items {
		out.Items[i].SignupCount = out.Items[i].Taken()
	}
	return out.Items, nil
}

func (c *Client) CreateSlot(ctx context.Context, in model.SlotInput) (*model.MeetingSlot, error) {
	var s model.MeetingSlot
	if err := c.do(ctx, http.MethodPost, "/member/meeting-slots", in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) UpdateSlot(ctx context.Context, id uint64, in model.SlotInput) (*model.MeetingSlot, error) {
	var s model.MeetingSlot
	if err := c.do(ctx, http.MethodPut, idPath("/member/meeting-slots/%d", id), in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) DeleteSlot(ctx context.Context, id uint64) (*DeleteResult, error) {
	var r DeleteResult
	if err := c.do(ctx, http.MethodDelete, idPath("/member/meeting-slots/%d", id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) Signup(ctx context.Context, slotID uint64, in model.SignupInput) (*model.SignupResult, error) {
	var r model.SignupResult
	if err := c.do(ctx, http.MethodPost, idPath("/meeting-slots/%d/signup", slotID), in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) SetAttendance(ctx context.Context, signupID uint64, attended bool) (*model.Signup, error) {
	var g model.Signup
	if err := c.do(ctx, http.MethodPatch, idPath("/member/meeting-signups/%d/attendance", signupID), map[string]bool{"attended": attended}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) GetInterview(ctx context.Context, id uint64) (*model.Interview, error) {
	var iv model.Interview
	if err := c.do(ctx, http.MethodGet, idPath("/admin/interviews/%d", id), nil, &iv); err != nil {
		return nil, err
	}
	return &iv, nil
}

// ListApplications returns the interview's applications, restricted to
// groupIDs when any are given.
func (c *Client) ListApplications(ctx context.Context, interviewID uint64, groupIDs ...uint64) ([]model.Application, error) {
	v := url.Values{}
	if len(groupIDs) > 0 {
		parts := make([]string, len(groupIDs))
		for i, g := range groupIDs {
			parts[i] = strconv.FormatUint(g, 10)
		}
		v.Set("groupIds", strings.Join(parts, ","))
	}
	var out items[model.Application]
	if err := c.do(ctx, http.MethodGet, query(idPath("/admin/interviews/%d/applications", interviewID), v), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) ListEvaluations(ctx context.Context, interviewID uint64) ([]model.Evaluation, error) {
	var out items[model.Evaluation]
	if err := c.do(ctx, http.MethodGet, idPath("/admin/interviews/%d/evaluations", interviewID), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UpsertEvaluation creates or overwrites the caller's evaluation.
func (c *Client) UpsertEvaluation(ctx context.Context, interviewID uint64, in model.EvaluationInput) (*model.Evaluation, error) {
	var e model.Evaluation
	if err := c.do(ctx, http.MethodPost, idPath("/admin/interviews/%d/evaluations", interviewID), in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
