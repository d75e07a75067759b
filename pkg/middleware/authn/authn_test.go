package authn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimburion/listing/pkg/auth"
	"github.com/nimburion/listing/pkg/server/router"
	ginrouter "github.com/nimburion/listing/pkg/server/router/gin"
)

type stubValidator map[string]error

func (s stubValidator) Validate(_ context.Context, token string) (*auth.Claims, error) {
	err, known := s[token]
	if !known {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return &auth.Claims{Subject: "u-" + token}, nil
}

func TestAuthenticate(t *testing.T) {
	validator := stubValidator{"good": nil, "old": auth.ErrTokenExpired}

	tests := []struct {
		name    string
		header  string
		status  int
		code    string
		subject string
	}{
		{name: "valid", header: "Bearer good", status: http.StatusOK, subject: "u-good"},
		{name: "lower case scheme", header: "bearer good", status: http.StatusOK, subject: "u-good"},
		{name: "missing", status: http.StatusUnauthorized, code: "auth.missing_token"},
		{name: "basic scheme", header: "Basic dXNlcg==", status: http.StatusUnauthorized, code: "auth.invalid_header"},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized, code: "auth.invalid_header"},
		{name: "expired", header: "Bearer old", status: http.StatusUnauthorized, code: "auth.token_expired"},
		{name: "unknown", header: "Bearer forged", status: http.StatusUnauthorized, code: "auth.invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var subject string
			r := ginrouter.NewRouter()
			r.GET("/api/v1/:entity", func(c router.Context) error {
				claims, ok := auth.ClaimsFromContext(c.Request().Context())
				if !ok || c.Get(ClaimsKey) != claims {
					t.Error("claims missing from contexts")
				}
				subject = claims.Subject
				return c.String(http.StatusOK, "ok")
			}, Authenticate(validator))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusOK {
				if subject != tt.subject {
					t.Fatalf("subject = %q", subject)
				}
				return
			}
			var body map[string]interface{}
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body["code"] != tt.code {
				t.Fatalf("code = %v, want %s", body["code"], tt.code)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("WWW-Authenticate header missing")
			}
		})
	}
}
