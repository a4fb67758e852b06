package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func testTokens() TokenService {
	return TokenService{Secret: []byte("test-secret-0123456789"), Issuer: "boxoffice", Duration: time.Hour}
}

func TestSignParse(t *testing.T) {
	ts := testTokens()
	tok, exp, err := ts.Sign("ops@example.com", ScopeReconcile)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Fatalf("exp = %v", exp)
	}

	claims, err := ts.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Operator != "ops@example.com" || !claims.HasScope(ScopeReconcile) {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	ts := testTokens()
	tok, _, _ := ts.Sign("ops")

	other := ts
	other.Issuer = "someone-else"
	if _, err := other.Parse(tok); err == nil {
		t.Fatal("accepted token from another issuer")
	}

	wrongKey := ts
	wrongKey.Secret = []byte("another-secret-0123456789")
	if _, err := wrongKey.Parse(tok); err == nil {
		t.Fatal("accepted token signed with another key")
	}

	expired := ts
	expired.Duration = -time.Minute
	old, _, _ := expired.Sign("ops")
	if _, err := ts.Parse(old); err == nil {
		t.Fatal("accepted expired token")
	}
}

func TestRequireScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := testTokens()
	withScope, _, _ := ts.Sign("ops", ScopeReconcile)
	without, _, _ := ts.Sign("viewer")

	r := gin.New()
	r.POST("/admin", RequireScope(ts, ScopeReconcile), func(c *gin.Context) {
		c.String(http.StatusOK, MustGetClaims(c).Operator)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"missing scope", "Bearer " + without, http.StatusForbidden},
		{"ok", "Bearer " + withScope, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
