package mtproto

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Prompter asks the person logging in for the secrets Telegram wants.
// The bot implements it over chat, the CLI over the terminal.
type Prompter interface {
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// PromptError is returned when a Prompter fails, for example on timeout.
type PromptError struct {
	Step string // "code" or "password"
	Err  error
}

func (e *PromptError) Error() string { return fmt.Sprintf("read %s: %v", e.Step, e.Err) }

func (e *PromptError) Unwrap() error { return e.Err }

// LoginResult is a completed sign in.
type LoginResult struct {
	Session  []byte
	UserID   int64
	Username string
	Phone    string
}

// Login signs phone in. It sends the code, asks the prompter for it and,
// when two-step verification is on, for the password.
func Login(ctx context.Context, cfg Config, phone string, p Prompter) (*LoginResult, error) {
	phone = strings.TrimSpace(phone)
	storage := NewMemoryStorage(nil)
	client := NewClient(cfg, storage, nil)

	var res *LoginResult
	err := client.Run(ctx, func(ctx context.Context) error {
		sent, err := client.API().AuthSendCode(ctx, &tg.AuthSendCodeRequest{
			PhoneNumber: phone,
			APIID:       cfg.APIID,
			APIHash:     cfg.APIHash,
			Settings:    tg.CodeSettings{},
		})
		if err != nil {
			return classifyLogin(err)
		}
		code, ok := sent.(*tg.AuthSentCode)
		if !ok {
			return fmt.Errorf("unexpected send code result %T", sent)
		}

		input, err := p.Code(ctx)
		if err != nil {
			return &PromptError{Step: "code", Err: err}
		}
		input = strings.ReplaceAll(strings.TrimSpace(input), " ", "")

		_, err = client.Auth().SignIn(ctx, phone, input, code.PhoneCodeHash)
		if errors.Is(err, auth.ErrPasswordAuthNeeded) {
			pw, perr := p.Password(ctx)
			if perr != nil {
				return &PromptError{Step: "password", Err: perr}
			}
			_, err = client.Auth().Password(ctx, pw)
		}
		if err != nil {
			var signUp *auth.SignUpRequired
			if errors.As(err, &signUp) {
				return &LoginError{Kind: LoginSignUpRequired, Err: err}
			}
			return classifyLogin(err)
		}

		self, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		res = &LoginResult{UserID: self.ID, Username: self.Username, Phone: phone}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Session = storage.Bytes()
	if len(res.Session) == 0 {
		return nil, errors.New("login finished without a session")
	}
	return res, nil
}
