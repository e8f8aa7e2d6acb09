package mtproto

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// LoginErrorKind classifies login failures.
type LoginErrorKind int

const (
	LoginFailed LoginErrorKind = iota
	LoginInvalidAPI
	LoginInvalidPhone
	LoginInvalidCode
	LoginCodeExpired
	LoginInvalidPassword
	LoginFloodWait
	LoginSignUpRequired
)

// LoginError wraps a failed login step.
type LoginError struct {
	Kind LoginErrorKind
	Wait time.Duration
	Err  error
}

func (e *LoginError) Error() string {
	switch e.Kind {
	case LoginFloodWait:
		return fmt.Sprintf("login: flood wait %s", e.Wait)
	default:
		return fmt.Sprintf("login: %v", e.Err)
	}
}

func (e *LoginError) Unwrap() error { return e.Err }

// classifyLogin maps RPC errors of the login calls.
func classifyLogin(err error) error {
	if err == nil {
		return nil
	}
	var le *LoginError
	if errors.As(err, &le) {
		return err
	}
	kind := LoginFailed
	var wait time.Duration
	switch {
	case tgerr.Is(err, "API_ID_INVALID", "API_ID_PUBLISHED_FLOOD"):
		kind = LoginInvalidAPI
	case tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "PHONE_NUMBER_FLOOD"):
		kind = LoginInvalidPhone
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EMPTY"):
		kind = LoginInvalidCode
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		kind = LoginCodeExpired
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		kind = LoginInvalidPassword
	default:
		if d, ok := tgerr.AsFloodWait(err); ok {
			kind, wait = LoginFloodWait, d
		}
	}
	return &LoginError{Kind: kind, Wait: wait, Err: err}
}

// JoinErrorKind classifies invite failures.
type JoinErrorKind int

const (
	JoinFailed JoinErrorKind = iota
	JoinAlreadyMember
	JoinInvalidInvite
	JoinFloodWait
	JoinRequestSent
)

// JoinError wraps a failed invite import.
type JoinError struct {
	Kind JoinErrorKind
	Wait time.Duration
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join chat: %v", e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

func classifyJoin(err error) error {
	kind := JoinFailed
	var wait time.Duration
	switch {
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		kind = JoinAlreadyMember
	case tgerr.Is(err, "INVITE_HASH_EXPIRED", "INVITE_HASH_INVALID", "INVITE_HASH_EMPTY"):
		kind = JoinInvalidInvite
	case tgerr.Is(err, "INVITE_REQUEST_SENT"):
		kind = JoinRequestSent
	default:
		if d, ok := tgerr.AsFloodWait(err); ok {
			kind, wait = JoinFloodWait, d
		}
	}
	return &JoinError{Kind: kind, Wait: wait, Err: err}
}
