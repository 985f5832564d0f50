package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func makeJWT(secret, aud, iss, sub string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":      sub,
		"username": sub,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	valid := env.signUp(t, "alice", "pw1")

	wrongSecret, err := makeJWT("other-secret", "wirechat-clients", "wirechat-relay", "alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	wrongAudience, err := makeJWT(testJWTSecret, "someone-else", "wirechat-relay", "alice", time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}
	expired, err := makeJWT(testJWTSecret, "wirechat-clients", "wirechat-relay", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("make jwt: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"wrong audience", "Bearer " + wrongAudience, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/api/online", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp := httptest.NewRecorder()
			env.router.ServeHTTP(resp, req)
			expectStatus(t, resp, tt.want)
		})
	}
}
