package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testAuthenticator(t *testing.T, opts ...Option) *Authenticator {
	t.Helper()
	base := []Option{WithClock(func() time.Time {
		return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	})}
	authn, err := NewAuthenticator("test-signing-secret", append(base, opts...)...)
	if err != nil {
		t.Fatalf("unexpected authenticator error: %v", err)
	}
	return authn
}

func TestRequireAuth_AllowsValidBearerToken(t *testing.T) {
	authn := testAuthenticator(t)

	token, err := authn.IssueAccessToken(Identity{UserID: "usr_1", Email: "seller@example.com", Role: RoleSeller})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	handlerCalled := false
	handler := authn.RequireAuth(RoleSeller)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true

		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UserID != "usr_1" {
			t.Fatalf("unexpected user id: %s", identity.UserID)
		}
		if identity.Role != RoleSeller {
			t.Fatalf("expected seller role, got %s", identity.Role)
		}
		if identity.Email != "seller@example.com" {
			t.Fatalf("unexpected email: %s", identity.Email)
		}

		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
}

func TestRequireAuth_FallsBackToAccessCookie(t *testing.T) {
	authn := testAuthenticator(t, WithAccessCookie("session"))

	token, err := authn.IssueAccessToken(Identity{UserID: "usr_2", Role: RoleBuyer})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	handler := authn.RequireAuth(RoleBuyer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || identity.UserID != "usr_2" {
			t.Fatalf("expected usr_2 identity, got %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	issuedAt := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	issuer := testAuthenticator(t)

	token, err := issuer.IssueAccessToken(Identity{UserID: "usr_3", Role: RoleBuyer})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	verifier := testAuthenticator(t, WithClock(func() time.Time {
		return issuedAt.Add(defaultAccessTokenTTL + time.Minute)
	}))

	handler := verifier.RequireAuth(RoleBuyer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "token_expired" {
		t.Fatalf("expected token_expired error, got %v", body["error"])
	}
}

func TestRequireAuth_RejectsWrongSignature(t *testing.T) {
	issuer := testAuthenticator(t)
	token, err := issuer.IssueAccessToken(Identity{UserID: "usr_4", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	verifier, err := NewAuthenticator("different-secret")
	if err != nil {
		t.Fatalf("unexpected authenticator error: %v", err)
	}

	handler := verifier.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute on forged token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "invalid_token" {
		t.Fatalf("expected invalid_token error, got %v", body["error"])
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	authn := testAuthenticator(t)

	handler := authn.RequireAuth(RoleBuyer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute without a token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuth_EnforcesRoles(t *testing.T) {
	authn := testAuthenticator(t)

	token, err := authn.IssueAccessToken(Identity{UserID: "usr_5", Role: RoleBuyer})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not execute for a buyer")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["error"] != "insufficient_role" {
		t.Fatalf("expected insufficient_role error, got %v", body["error"])
	}
}

func TestVerifyToken_DefaultsMissingRole(t *testing.T) {
	authn := testAuthenticator(t)

	token, err := authn.IssueAccessToken(Identity{UserID: "usr_6"})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	identity, err := authn.VerifyToken(token)
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if identity.Role != RoleBuyer {
		t.Fatalf("expected fallback role %q, got %q", RoleBuyer, identity.Role)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		token, ok := extractBearerToken(tc.header)
		if ok != tc.ok || token != tc.token {
			t.Fatalf("header %q: expected (%q, %v), got (%q, %v)", tc.header, tc.token, tc.ok, token, ok)
		}
	}
}
