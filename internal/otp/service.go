// Package otp issues and checks short-lived email codes for the lead forms.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/common/validation"
)

var (
	ErrRateLimited     = internal.NewTooManyRequestsError("too many codes requested, try again later", internal.ErrCodeOTPRateLimited)
	ErrInvalidCode     = internal.NewVerificationError("invalid verification code", internal.ErrCodeOTPInvalid)
	ErrExpired         = internal.NewVerificationError("verification code expired or was never issued", internal.ErrCodeOTPExpired)
	ErrTooManyAttempts = internal.NewVerificationError("too many failed attempts, request a new code", internal.ErrCodeOTPTooManyAttempts)

	errDeliveryFailed = internal.NewExternalError("failed to deliver verification code", internal.ErrCodeGatewayUnavailable, nil)
)

const (
	codeLength          = 6
	defaultMaxAttempts  = 5
	defaultTTL          = 10 * time.Minute
	defaultSweepEvery   = time.Minute
	defaultLimiterEvery = 30 * time.Second
)

type Options struct {
	TTL         time.Duration
	MaxAttempts int
	BCryptCost  int
}

type Issued struct {
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

type Service struct {
	store       *MemoryStore
	limiter     *Limiter
	sender      Sender
	ttl         time.Duration
	maxAttempts int
	cost        int
	generate    func() (string, error)
	logger      *slog.Logger
}

func NewService(store *MemoryStore, limiter *Limiter, sender Sender, opts Options, logger *slog.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if limiter == nil {
		limiter = NewLimiter(defaultLimiterEvery, 3)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BCryptCost < bcrypt.MinCost || opts.BCryptCost > bcrypt.MaxCost {
		opts.BCryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:       store,
		limiter:     limiter,
		sender:      sender,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		cost:        opts.BCryptCost,
		generate:    randomCode,
		logger:      logger,
	}
}

// WithCodeGenerator replaces the random code source, for tests.
func (s *Service) WithCodeGenerator(generate func() (string, error)) *Service {
	s.generate = generate
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	validator := validation.NewValidator()
	validator.Field("email", email).Required().Email()
	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Send issues a new code for email, replacing any pending one.
func (s *Service) Send(ctx context.Context, email string) (*Issued, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !s.limiter.Allow(email) {
		s.logger.Warn("otp send rate limited", "email", MaskEmail(email))
		return nil, ErrRateLimited
	}

	code, err := s.generate()
	if err != nil {
		return nil, internal.NewInternalError("failed to generate code", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash code", err)
	}

	expiresAt := s.store.put(email, hash, s.ttl)
	if err := s.sender.Send(ctx, email, code); err != nil {
		s.store.delete(email)
		s.logger.Error("otp delivery failed", "email", MaskEmail(email), "error", err)
		return nil, errDeliveryFailed.WithCause(err)
	}

	return &Issued{ExpiresIn: s.ttl, ExpiresAt: expiresAt}, nil
}

// Verify consumes the pending code for email when code matches.
func (s *Service) Verify(_ context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if err := validateEmail(email); err != nil {
		return err
	}
	if code == "" {
		return internal.NewValidationFieldError("code", "code is required", internal.ErrCodeValidationFailed)
	}

	pending, attempt, exhausted := s.store.reserve(email, s.maxAttempts)
	if exhausted {
		return ErrTooManyAttempts
	}
	if pending == nil {
		return ErrExpired
	}

	if err := bcrypt.CompareHashAndPassword(pending.hash, []byte(code)); err != nil {
		if attempt >= s.maxAttempts {
			s.store.release(email, pending)
			s.logger.Warn("otp attempts exhausted", "email", MaskEmail(email))
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	}

	// a concurrent verify of the same code may have consumed it first
	if !s.store.release(email, pending) {
		return ErrExpired
	}
	s.logger.Info("otp verified", "email", MaskEmail(email))
	return nil
}

// Sweep removes expired codes and idle rate-limit buckets every interval
// until ctx is done.
func (s *Service) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			codes := s.store.Sweep()
			buckets := s.limiter.Sweep(s.ttl)
			if codes > 0 || buckets > 0 {
				s.logger.Debug("otp state swept", "codes", codes, "buckets", buckets)
			}
		}
	}
}

func (s *Service) Reset() {
	s.store.Reset()
	s.limiter.Reset()
}

func randomCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}
