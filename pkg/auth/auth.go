// Package auth implements the demo sign in and sign up flows. Nothing is
// stored: every well formed request succeeds after a short delay.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrMissingField     = errors.New("required field missing")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// LoginRequest is the sign in form
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the sign up form
type RegisterRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Result tells the client where to go next
type Result struct {
	Success  bool   `json:"success"`
	Redirect string `json:"redirect"`
}

// Service runs the demo flows
type Service struct {
	delay  time.Duration
	logger *logrus.Logger
}

// NewService creates a service that answers after delay
func NewService(delay time.Duration, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{delay: delay, logger: logger}
}

// Login signs a user in
func (s *Service) Login(ctx context.Context, req LoginRequest) (Result, error) {
	if err := required(map[string]string{"email": req.Email, "password": req.Password}); err != nil {
		return Result{}, err
	}
	if err := s.wait(ctx); err != nil {
		return Result{}, err
	}

	s.logger.WithField("email", req.Email).Info("User signed in")
	return Result{Success: true, Redirect: "/"}, nil
}

// Register signs a user up
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Result, error) {
	if err := required(map[string]string{"name": req.Name, "email": req.Email, "password": req.Password}); err != nil {
		return Result{}, err
	}
	if req.Password != req.ConfirmPassword {
		return Result{}, ErrPasswordMismatch
	}
	if err := s.wait(ctx); err != nil {
		return Result{}, err
	}

	s.logger.WithField("email", req.Email).Info("User registered")
	return Result{Success: true, Redirect: "/login"}, nil
}

func (s *Service) wait(ctx context.Context) error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func required(fields map[string]string) error {
	for _, name := range []string{"name", "email", "password"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}
