package reconcile

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"boxoffice/internal/auth"
)

func TestReconcileEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t, DefaultConfig())
	f.upload(t, "a.csv", []string{"Heat", "Al Pacino", "Michael Mann", "Crime", "187000000", "60000000"})

	tokens := auth.TokenService{Secret: []byte("test-secret-0123456789"), Issuer: "boxoffice", Duration: time.Hour}
	tok, _, err := tokens.Sign("ops", auth.ScopeReconcile)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	router := gin.New()
	NewHandler(f.p, tokens).RegisterRoutes(router.Group("/admin"))

	post := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/admin/reconcile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := post(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", w.Code)
	}

	w := post("Bearer " + tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var rep Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Outcome != OutcomeMerged || rep.Accepted != 1 {
		t.Fatalf("report = %+v", rep)
	}

	f.p.mu.Lock()
	w = post("Bearer " + tok)
	f.p.mu.Unlock()
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), "in progress") {
		t.Fatalf("busy status = %d: %s", w.Code, w.Body.String())
	}
}
