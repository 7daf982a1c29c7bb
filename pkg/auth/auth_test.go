package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(delay time.Duration) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewService(delay, logger)
}

func TestLogin(t *testing.T) {
	s := newTestService(10 * time.Millisecond)

	start := time.Now()
	res, err := s.Login(context.Background(), LoginRequest{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "/", res.Redirect)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	_, err = s.Login(context.Background(), LoginRequest{Email: "a@b.c"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestRegister(t *testing.T) {
	s := newTestService(time.Millisecond)
	req := RegisterRequest{Name: "Sam", Email: "sam@example.com", Password: "pw", ConfirmPassword: "pw"}

	res, err := s.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/login", res.Redirect)

	req.ConfirmPassword = "other"
	_, err = s.Register(context.Background(), req)
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = s.Register(context.Background(), RegisterRequest{Email: "x@y.z", Password: "pw", ConfirmPassword: "pw"})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestCancelledWait(t *testing.T) {
	s := newTestService(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Login(ctx, LoginRequest{Email: "a@b.c", Password: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
