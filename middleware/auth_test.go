package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	sub, err := ParseToken("k", signed(t, "k", jwt.MapClaims{"sub": "7", "exp": exp}))
	require.NoError(t, err)
	require.Equal(t, "7", sub)

	sub, err = ParseToken("k", signed(t, "k", jwt.MapClaims{"sub": 9, "exp": exp}))
	require.NoError(t, err)
	require.Equal(t, "9", sub)

	_, err = ParseToken("k", signed(t, "other", jwt.MapClaims{"sub": "7", "exp": exp}))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("k", signed(t, "k", jwt.MapClaims{"sub": "7", "exp": time.Now().Add(-time.Hour).Unix()}))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("k", signed(t, "k", jwt.MapClaims{"exp": exp}))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func authRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/h", AuthMiddleware(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubjectKey))
	})
	r.GET("/q", QueryTokenAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubjectKey))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := authRouter("k")
	tok := signed(t, "k", jwt.MapClaims{"sub": "admin", "exp": time.Now().Add(time.Hour).Unix()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/h", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/h", nil)
	req.Header.Set("Authorization", "Token "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/h", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q?token="+tok, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	r := authRouter("")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/h", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
