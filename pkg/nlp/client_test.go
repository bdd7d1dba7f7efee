package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WessleyAI/manualkg/pkg/resilience"
)

func TestSrlCons_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/srl_cons" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Sentence != "Load is unbalanced" {
			t.Errorf("sentence = %q", req.Sentence)
		}
		_ = json.NewEncoder(w).Encode(Response{
			Code: CodeSuccess,
			Data: Data{
				SRL:  SRL{Cause: []string{"unbalanced"}},
				Cons: Constituents{NP: []string{"Load"}, VB: []string{"is"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", Options{})
	resp, err := c.SrlCons(context.Background(), "Load is unbalanced")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data.Cons.NP) != 1 || resp.Data.Cons.NP[0] != "Load" {
		t.Fatalf("NP = %v", resp.Data.Cons.NP)
	}
}

func TestSrlCons_NonSuccessCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"responseCode":"FAILURE"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Options{}).SrlCons(context.Background(), "x")
	if !errors.Is(err, ErrNotSuccess) {
		t.Fatalf("expected ErrNotSuccess, got %v", err)
	}
}

func TestSrlCons_BreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Options{
		Interval: time.Millisecond,
		Burst:    10,
		Breaker:  resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Hour},
	})
	for i := 0; i < 2; i++ {
		if _, err := c.SrlCons(context.Background(), "x"); err == nil {
			t.Fatal("expected error")
		}
	}
	if c.BreakerState() != resilience.StateOpen {
		t.Fatalf("state = %s", c.BreakerState())
	}
	if _, err := c.SrlCons(context.Background(), "x"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("server calls = %d, want 2", calls)
	}
}
