package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mngrhq/mngr/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, userID, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"role":   role,
		"exp":    time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T) (*gin.Engine, *identity.Identity) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen identity.Identity
	r := gin.New()
	r.Use(identity.GinMiddleware(testSecret))
	r.GET("/whoami", func(c *gin.Context) {
		id, err := identity.FromContext(c.Request.Context())
		require.NoError(t, err)
		seen = id
		c.Status(http.StatusOK)
	})
	r.GET("/admin", identity.RequireRole(identity.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func doRequest(r *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	r, seen := newTestRouter(t)

	token := signToken(t, testSecret, "123456789", "creator")
	w := doRequest(r, "/whoami", "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "123456789", seen.ID.String())
	assert.Equal(t, identity.RoleCreator, seen.Role)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	r, _ := newTestRouter(t)

	cases := map[string]string{
		"missing header":  "",
		"not bearer":      "Basic abc123",
		"garbage token":   "Bearer not.a.jwt",
		"wrong secret":    "Bearer " + signToken(t, "other-secret", "123456789", "creator"),
		"unknown role":    "Bearer " + signToken(t, testSecret, "123456789", "superuser"),
		"non-numeric sub": "Bearer " + signToken(t, testSecret, "abc", "creator"),
	}
	for name, auth := range cases {
		t.Run(name, func(t *testing.T) {
			w := doRequest(r, "/whoami", auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	r, _ := newTestRouter(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "123456789",
		"role":   "creator",
		"exp":    time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	w := doRequest(r, "/whoami", "Bearer "+signed)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, "/admin", "Bearer "+signToken(t, testSecret, "123456789", "admin"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, "/admin", "Bearer "+signToken(t, testSecret, "123456789", "brand"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
