package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProber はProberのモック
type MockProber struct {
	mock.Mock
}

func (m *MockProber) Probe(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newContext(path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHealthHandler_Check(t *testing.T) {
	c, rec := newContext("/health")
	h := NewHealthHandler(new(MockProber), time.Second)

	err := h.Check(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"timestamp"`)
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("プローブ成功で200", func(t *testing.T) {
		p := new(MockProber)
		p.On("Probe", mock.Anything).Return(4, nil)
		c, rec := newContext("/health/ready")

		err := NewHealthHandler(p, time.Second).Ready(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database_id":4`)
		p.AssertExpectations(t)
	})

	t.Run("プローブ失敗で503", func(t *testing.T) {
		p := new(MockProber)
		p.On("Probe", mock.Anything).Return(-1, errors.New("begin failed"))
		c, rec := newContext("/health/ready")

		err := NewHealthHandler(p, time.Second).Ready(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
		assert.Contains(t, rec.Body.String(), `"error":"begin failed"`)
	})
}
