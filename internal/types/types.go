// Package types maps internal errors onto the stable codes clients see.
package types

import (
	"errors"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/draft"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/hub"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/room"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/store"
	pub "github.com/DoyleJ11/fantasy-draft-backend/pkg/types"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnknownEvent = errors.New("unknown event")
)

const (
	CodeNotYourTurn          = "NOT_YOUR_TURN"
	CodePlayerAlreadyDrafted = "PLAYER_ALREADY_DRAFTED"
	CodeDraftNotActive       = "DRAFT_NOT_ACTIVE"
	CodePickAlreadyMade      = "PICK_ALREADY_MADE"
	CodeRoomFull             = "ROOM_FULL"
	CodeUnknownPlayer        = "UNKNOWN_PLAYER"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeNotYourTeam          = "NOT_YOUR_TEAM"
	CodeDraftNotFound        = "DRAFT_NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnknownEvent         = "UNKNOWN_EVENT"
	CodeInternal             = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{engine.ErrNotYourTurn, CodeNotYourTurn},
	{engine.ErrPlayerAlreadyDrafted, CodePlayerAlreadyDrafted},
	{engine.ErrDraftNotActive, CodeDraftNotActive},
	{engine.ErrPickAlreadyMade, CodePickAlreadyMade},
	{room.ErrRoomFull, CodeRoomFull},
	{engine.ErrUnknownPlayer, CodeUnknownPlayer},
	{engine.ErrInvalidTransition, CodeInvalidTransition},
	{draft.ErrNotYourTeam, CodeNotYourTeam},
	{hub.ErrDraftNotFound, CodeDraftNotFound},
	{store.ErrDraftNotFound, CodeDraftNotFound},
	{room.ErrInvalidRoom, CodeBadRequest},
	{engine.ErrInvalidRoster, CodeBadRequest},
	{ErrBadRequest, CodeBadRequest},
	{ErrUnknownEvent, CodeUnknownEvent},
}

// ErrorCode returns the wire code for err. Unrecognised errors are INTERNAL.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsValidation reports whether err is a rule violation the caller caused, as
// opposed to an infrastructure failure.
func IsValidation(err error) bool {
	return err != nil && ErrorCode(err) != CodeInternal
}

// ErrorPayload builds the body of a draft:error or error frame. Internal
// errors are not described to clients.
func ErrorPayload(event string, err error) pub.ErrorPayload {
	code := ErrorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return pub.ErrorPayload{Event: event, Code: code, Message: msg}
}
