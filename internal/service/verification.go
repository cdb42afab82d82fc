package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrCodeNotFound = errors.New("verification code not found, request a new one")
	ErrCodeExpired  = errors.New("verification code expired, request a new one")
	ErrCodeMismatch = errors.New("verification code does not match")
)

const (
	codeTTL         = 10 * time.Minute
	maxPendingCodes = 10000
)

type pendingCode struct {
	code      string
	expiresAt time.Time
}

// Verifier manages the email verification codes used during registration.
// Codes live in memory only; losing them on restart just means the user
// requests a new one.
type Verifier struct {
	codes  *expirable.LRU[string, pendingCode]
	mailer Mailer
	logger *slog.Logger
}

func NewVerifier(mailer Mailer, logger *slog.Logger) *Verifier {
	return &Verifier{
		// The LRU TTL is a safety net; expiry is checked explicitly so the
		// user gets a precise "expired" answer rather than "not found".
		codes:  expirable.NewLRU[string, pendingCode](maxPendingCodes, nil, 2*codeTTL),
		mailer: mailer,
		logger: logger,
	}
}

// SendCode generates a fresh 6-digit code, stores it under the email and
// mails it out. A newer code always replaces an older pending one.
func (v *Verifier) SendCode(ctx context.Context, email string) error {
	code, err := sixDigitCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	v.codes.Add(email, pendingCode{
		code:      code,
		expiresAt: time.Now().Add(codeTTL),
	})

	body := fmt.Sprintf(
		"Your Snappy verification code is: %s\n\nIt expires in 10 minutes. "+
			"If you did not request this code, ignore this message.", code)

	if err := v.mailer.Send(ctx, email, "Snappy account verification code", body); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// VerifyCode checks the submitted code. A successful check consumes it.
func (v *Verifier) VerifyCode(email, code string) error {
	pending, ok := v.codes.Get(email)
	if !ok {
		return ErrCodeNotFound
	}
	if time.Now().After(pending.expiresAt) {
		v.codes.Remove(email)
		return ErrCodeExpired
	}
	if pending.code != code {
		return ErrCodeMismatch
	}
	v.codes.Remove(email)
	return nil
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
