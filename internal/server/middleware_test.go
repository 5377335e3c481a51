package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCorrelation(t *testing.T, incoming string) (string, string) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(correlation.Header, incoming)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)

	return seen, rec.Header().Get(correlation.Header)
}

func TestCorrelationMiddlewareKeepsIncomingID(t *testing.T) {
	seen, header := runCorrelation(t, "req-123")

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", header)
}

func TestCorrelationMiddlewareGeneratesID(t *testing.T) {
	seen, header := runCorrelation(t, "")

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, header)
}

func TestCorrelationMiddlewareReplacesUnsafeID(t *testing.T) {
	seen, header := runCorrelation(t, "evil\nheader "+strings.Repeat("x", 100))

	assert.NotContains(t, seen, "\n")
	assert.LessOrEqual(t, len(seen), 64)
	assert.Equal(t, seen, header)
}
