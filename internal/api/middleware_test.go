package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuthMiddleware_NoTokenConfigured(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "")
	r := authRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected open access without a configured token, got %d", w.Code)
	}
}

func TestAuthMiddleware_BearerToken(t *testing.T) {
	t.Setenv("API_AUTH_TOKEN", "hunter2")
	r := authRouter()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic hunter2", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"correct token", "Bearer hunter2", http.StatusOK},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, w.Code)
		}
	}
}

func TestRateLimiter_BurstThenRefused(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("Expected request %d within the burst to pass", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("Expected the request after the burst to be refused")
	}

	// Other clients have their own bucket.
	if !rl.allow("10.0.0.2") {
		t.Error("Expected a fresh client to pass")
	}
}
