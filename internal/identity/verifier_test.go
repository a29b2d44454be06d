package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestVerifier(t *testing.T, handler http.Handler) *Verifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		AnonKey:     "anon",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	})
}

func TestVerifyTokenSuccess(t *testing.T) {
	v := newTestVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("bad headers: %v", r.Header)
		}
		w.Write([]byte(`{"id":"user-1","email":"a@b.c","email_confirmed_at":"2026-01-01T00:00:00Z","user_metadata":{"name":"Ann"}}`))
	}))

	u, err := v.VerifyToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "user-1" || u.Email != "a@b.c" || !u.EmailVerified {
		t.Fatalf("user = %+v", u)
	}
}

func TestVerifyTokenRejectionNoRetry(t *testing.T) {
	calls := 0
	v := newTestVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"msg":"JWT expired"}`))
	}))

	_, err := v.VerifyToken(context.Background(), "tok")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("err = %v, want expiry detail", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (auth errors never retry)", calls)
	}
}

func TestVerifyTokenInvalidDetail(t *testing.T) {
	v := newTestVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"msg":"invalid JWT"}`))
	}))

	_, err := v.VerifyToken(context.Background(), "tok")
	if !errors.Is(err, ErrUnauthorized) || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("err = %v", err)
	}
}

func TestVerifyTokenRetriesTransportErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			// Drop the connection to force a transport error.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		w.Write([]byte(`{"id":"user-1","email":"a@b.c"}`))
	}))
	t.Cleanup(srv.Close)

	v := New(Config{BaseURL: srv.URL, AnonKey: "anon", MaxAttempts: 3, BackoffBase: time.Millisecond})
	u, err := v.VerifyToken(context.Background(), "tok")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "user-1" || calls != 3 {
		t.Fatalf("user = %+v, calls = %d", u, calls)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := New(Config{BaseURL: "http://unused", AnonKey: "anon"})
	if _, err := v.VerifyToken(context.Background(), "  "); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}
