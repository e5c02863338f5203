package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret, userID string, expires time.Time) string {
	t.Helper()
	claims := JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/protected", JWTAuth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	valid := signToken(t, testSecret, "doctor-7", time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "bearer header", header: "Bearer " + valid, status: http.StatusOK, body: "doctor-7"},
		{name: "query token", query: "?token=" + valid, status: http.StatusOK, body: "doctor-7"},
		{name: "missing", status: http.StatusUnauthorized},
		{name: "bad scheme", header: "Token " + valid, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + signToken(t, "other", "doctor-7", time.Now().Add(time.Hour)), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, testSecret, "doctor-7", time.Now().Add(-time.Minute)), status: http.StatusUnauthorized},
		{name: "no user id", header: "Bearer " + signToken(t, testSecret, "", time.Now().Add(time.Hour)), status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			authRouter().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status=%d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Fatalf("body=%q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestJWTAuth_RejectsNonHMAC(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+unsigned)
	rec := httptest.NewRecorder()
	authRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
}

func originRouter(allowed ...string) *gin.Engine {
	r := gin.New()
	r.Use(OriginFilter(allowed))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestOriginFilter(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		method  string
		status  int
		cors    bool
	}{
		{name: "allowed", allowed: []string{"https://clinic.example"}, origin: "https://clinic.example", status: http.StatusOK, cors: true},
		{name: "rejected", allowed: []string{"https://clinic.example"}, origin: "https://evil.example", status: http.StatusForbidden},
		{name: "no origin", allowed: []string{"https://clinic.example"}, status: http.StatusOK},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", status: http.StatusOK, cors: true},
		{name: "preflight", allowed: []string{"https://clinic.example"}, origin: "https://clinic.example", method: http.MethodOptions, status: http.StatusNoContent, cors: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req := httptest.NewRequest(method, "/ok", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			originRouter(tt.allowed...).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status=%d, want %d", rec.Code, tt.status)
			}
			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.cors && got != tt.origin {
				t.Fatalf("Access-Control-Allow-Origin=%q, want %q", got, tt.origin)
			}
			if !tt.cors && got != "" {
				t.Fatalf("unexpected CORS header %q", got)
			}
		})
	}
}
