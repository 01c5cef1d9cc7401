package scavenger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(zaptest.NewLogger(t), srv.URL, 5*time.Second)
}

func TestFetchChallenge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/challenge" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"challenge":{
			"challenge_id":"day3*7",
			"difficulty":"0fff",
			"no_pre_mine":"abc123",
			"latest_submission":"2026-06-01T00:00:00Z",
			"no_pre_mine_hour":"13"
		},"total_challenges":4}`))
	})

	got, err := c.FetchChallenge(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ID != "day3*7" || got.Difficulty != "0fff" || got.TableKey != "abc123" {
		t.Errorf("unexpected challenge %+v", got)
	}
	if got.DeadlineHour != "13" {
		t.Errorf("deadline_hour = %q", got.DeadlineHour)
	}
}

func TestFetchChallengeErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service down", http.StatusBadGateway)
	})
	if _, err := c.FetchChallenge(context.Background()); err == nil {
		t.Error("expected error on HTTP 502")
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"challenge":{}}`))
	})
	if _, err := c.FetchChallenge(context.Background()); err == nil {
		t.Error("expected error on missing challenge_id")
	}
}

func TestSubmitSolutionSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		want := "/solution/addr1/chal-1/00000000000000ff"
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"crypto_receipt":{"preimage":"p","timestamp":"t","signature":"s"}}`))
	})

	receipt, err := c.SubmitSolution(context.Background(), "addr1", "chal-1", 0xff)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.Signature != "s" {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestSubmitSolutionRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Solution already exists", http.StatusConflict)
	})

	_, err := c.SubmitSolution(context.Background(), "addr1", "chal-1", 1)
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Message != "HTTP 409: Solution already exists" {
		t.Errorf("message = %q", rej.Message)
	}
}

func TestSubmitSolutionMissingReceipt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	_, err := c.SubmitSolution(context.Background(), "addr1", "chal-1", 1)
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("a 2xx without a receipt must be a rejection, got %v", err)
	}
}

func TestSubmitSolutionTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections
	c := NewClient(zaptest.NewLogger(t), srv.URL, time.Second)

	_, err := c.SubmitSolution(context.Background(), "addr1", "chal-1", 1)
	if err == nil {
		t.Fatal("expected transport error")
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		t.Error("transport failures must not look like rejections")
	}
}
