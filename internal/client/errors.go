package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/iliyamo/recruiting-portal/internal/model"
)

var (
	// ErrSlotFull matches a local or server side full-slot rejection.
	ErrSlotFull = errors.New("this meeting slot is full")
	// ErrAlreadySignedUp matches the server's duplicate e-mail rejection.
	ErrAlreadySignedUp = errors.New("already signed up for a coffee chat")
	// ErrDeleteNotConfirmed is returned when the user declines a delete.
	ErrDeleteNotConfirmed = errors.New("delete not confirmed")
	// ErrEditInProgress is returned by BeginEdit while another edit is open.
	ErrEditInProgress = errors.New("another slot is being edited")
	ErrSlotNotFound   = errors.New("meeting slot not found")
)

// Codes sent by the server next to the error message.
const (
	codeSlotFull        = "SLOT_FULL"
	codeAlreadySignedUp = "ALREADY_SIGNED_UP"
)

// RemoteError is a non-2xx answer from the API.
type RemoteError struct {
	Status  int
	Message string
	Code    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// Is lets errors.Is match coded rejections against the package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrSlotFull:
		return e.Code == codeSlotFull
	case ErrAlreadySignedUp:
		return e.Code == codeAlreadySignedUp
	}
	return false
}

// NetworkError wraps a failure to reach the API or read its answer.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage is the banner text for err: the server's message when there
// is one, the validation message for bad input, otherwise fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	for _, s := range []error{ErrSlotFull, ErrAlreadySignedUp, ErrDeleteNotConfirmed, ErrEditInProgress, ErrSlotNotFound} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return fallback
}
