package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Skotchmaster/checkout/pkg/tokens"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-jwt-secret")

func newCtx(t *testing.T, setup func(r *http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func sign(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := tokens.NewAccessToken(testSecret, userID, role, time.Now().Add(time.Minute))
	require.NoError(t, err)
	return tok
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	userID := uuid.NewString()
	okHandler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := NewJWTAuth(testSecret)
	userTok := sign(t, userID, "user")

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{name: "missing token", status: http.StatusUnauthorized},
		{
			name: "cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessCookie, Value: userTok})
			},
			status: http.StatusOK,
		},
		{
			name: "bearer header",
			setup: func(r *http.Request) {
				r.Header.Set(echo.HeaderAuthorization, "Bearer "+userTok)
			},
			status: http.StatusOK,
		},
		{
			name: "garbage",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "garbage"})
			},
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, rec := newCtx(t, tt.setup)
			err := mw.RequireAuth(okHandler)(c)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, rec.Code)
				id, idErr := UserID(c)
				require.NoError(t, idErr)
				assert.Equal(t, userID, id.String())
				return
			}
			assert.Equal(t, tt.status, httpStatus(t, err))
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	okHandler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	mw := NewJWTAuth(testSecret)

	c, _ := newCtx(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookie, Value: sign(t, uuid.NewString(), "user")})
	})
	assert.Equal(t, http.StatusForbidden, httpStatus(t, mw.RequireAdmin(okHandler)(c)))

	c, rec := newCtx(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: AccessCookie, Value: sign(t, uuid.NewString(), tokens.RoleAdmin)})
	})
	require.NoError(t, mw.RequireAdmin(okHandler)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, IsAdmin(c))
}

func TestUserID_Unset(t *testing.T) {
	t.Parallel()

	c, _ := newCtx(t, nil)
	_, err := UserID(c)
	assert.ErrorIs(t, err, ErrUnauthorized)

	c.Set(CtxUserID, "not-a-uuid")
	_, err = UserID(c)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
