package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/welldanyogia/colancer-registry/internal/api"
	"github.com/welldanyogia/colancer-registry/internal/auth"
	appctx "github.com/welldanyogia/colancer-registry/internal/context"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService(auth.TokenServiceConfig{
		Secret: "test-session-secret-key-32-chars",
		Expiry: 15 * time.Minute,
		Issuer: "test-issuer",
	})
}

// testHandler records whether it was called and echoes the wallet from context
func testHandler() (http.Handler, *bool) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		wallet, ok := appctx.ExtractWallet(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(wallet))
	})
	return handler, &called
}

func decodeCode(t interface{ Fatalf(string, ...any) }, rec *httptest.ResponseRecorder) string {
	var resp api.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

// *For any* request without an Authorization header, the middleware returns
// 401 AUTH_TOKEN_MISSING and never calls the handler.
func TestProperty_MissingAuthHeaderReturns401(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		path := "/" + rapid.StringMatching(`[a-z]{3,10}`).Draw(t, "path")
		method := rapid.SampledFrom([]string{"GET", "POST", "PUT", "DELETE"}).Draw(t, "method")

		handler, called := testHandler()
		req := httptest.NewRequest(method, path, nil)
		rec := httptest.NewRecorder()

		NewAuthMiddleware(newTestTokenService()).Authenticate(handler).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", rec.Code)
		}
		if *called {
			t.Fatal("handler should not be called when auth header is missing")
		}
		if code := decodeCode(t, rec); code != CodeTokenMissing {
			t.Fatalf("expected %s, got %s", CodeTokenMissing, code)
		}
	})
}

func TestAuthenticate_ValidToken(t *testing.T) {
	svc := newTestTokenService()
	tok, err := svc.Issue("0xABCDEF0000000000000000000000000000000001", "user123456abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler, called := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()

	NewAuthMiddleware(svc).Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !*called {
		t.Fatalf("expected handler to run, got %d", rec.Code)
	}
	if rec.Body.String() != "0xabcdef0000000000000000000000000000000001" {
		t.Errorf("unexpected wallet in context: %q", rec.Body.String())
	}
}

func TestAuthenticate_InvalidHeaders(t *testing.T) {
	tests := []string{
		"Basic abc",
		"Bearer",
		"Bearer ",
		"Bearer not-a-jwt",
	}

	for _, header := range tests {
		t.Run(header, func(t *testing.T) {
			handler, called := testHandler()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()

			NewAuthMiddleware(newTestTokenService()).Authenticate(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if *called {
				t.Error("handler should not be called")
			}
			if code := decodeCode(t, rec); code != CodeTokenInvalid {
				t.Errorf("expected %s, got %s", CodeTokenInvalid, code)
			}
		})
	}
}

func TestAuthenticate_RejectsRefreshToken(t *testing.T) {
	svc := newTestTokenService()
	pair, err := svc.IssuePair("0xABCDEF0000000000000000000000000000000001", "user123456abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler, called := testHandler()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := httptest.NewRecorder()

	NewAuthMiddleware(svc).Authenticate(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || *called {
		t.Fatalf("expected refresh token to be refused, got %d", rec.Code)
	}
	if code := decodeCode(t, rec); code != CodeTokenInvalid {
		t.Errorf("expected %s, got %s", CodeTokenInvalid, code)
	}
}
