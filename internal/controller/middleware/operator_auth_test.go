package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireOperatorToken_MissingHeader(t *testing.T) {
	middleware := RequireOperatorToken("test-secret-61")

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/jobs/create", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if body := rr.Body.String(); body != "Missing authorization header\n" {
		t.Errorf("got body %q, want %q", body, "Missing authorization header\n")
	}
}

func TestRequireOperatorToken_InvalidHeaderFormat(t *testing.T) {
	middleware := RequireOperatorToken("test-secret-61")

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	invalidHeaders := []string{
		"Basic test-secret-61",
		"Bearer",
		"Token test-secret-61",
		"test-secret-61",
		"Bearer  test-secret-61", // Double space
	}

	for _, h := range invalidHeaders {
		req := httptest.NewRequest(http.MethodPost, "/jobs/stop", nil)
		req.Header.Set("Authorization", h)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: got status %d, want %d", h, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireOperatorToken_InvalidToken(t *testing.T) {
	middleware := RequireOperatorToken("correct-secret")

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not have been called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/jobs/create", nil)
	req.Header.Set("Authorization", "Bearer wrong-secret")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRequireOperatorToken_Success(t *testing.T) {
	secret := "operator-key"
	middleware := RequireOperatorToken(secret)

	called := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/jobs/create", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if !called {
		t.Error("Next handler was not called")
	}
}

func TestRequireOperatorToken_DisabledWhenEmpty(t *testing.T) {
	called := false
	handler := RequireOperatorToken("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/jobs/create", nil))

	if !called {
		t.Error("expected requests to pass without a configured token")
	}
}
