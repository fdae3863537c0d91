package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authedRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthValidToken(t *testing.T) {
	var gotOperator string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOperator = GetOperatorID(r.Context())
	})

	token := signToken(t, testSecret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"renderer:admin"},
	})

	rec := httptest.NewRecorder()
	Auth(testSecret)(next).ServeHTTP(rec, authedRequest(token))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if gotOperator != "op-1" {
		t.Fatalf("operator=%q", gotOperator)
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	mw := Auth(testSecret)(next)

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other-secret", &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "op-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})},
		{"expired", signToken(t, testSecret, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "op-1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, authedRequest(tc.token))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status=%d, want 401", tc.name, rec.Code)
		}
	}
}

func TestRequireScope(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	token := signToken(t, testSecret, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Scopes: []string{"renderer:read"},
	})

	allowed := Auth(testSecret)(RequireScope("renderer:read")(next))
	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, authedRequest(token))
	if rec.Code != http.StatusOK {
		t.Fatalf("scoped request status=%d", rec.Code)
	}

	denied := Auth(testSecret)(RequireScope("renderer:admin")(next))
	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, authedRequest(token))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unscoped request status=%d", rec.Code)
	}
}
