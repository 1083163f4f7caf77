package extsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClient_ListSendsRangeAndAuth(t *testing.T) {
	var gotAuth, gotFrom, gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"bookings": []ExternalBooking{{Ref: "ext-1", Customer: "walk-in"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret-key")
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bookings, err := c.List(context.Background(), from, from.AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bookings) != 1 || bookings[0].Ref != "ext-1" {
		t.Fatalf("bookings = %+v", bookings)
	}
	if gotAuth != "Bearer secret-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotFrom != "2025-03-03T00:00:00Z" || gotTo != "2025-03-17T00:00:00Z" {
		t.Fatalf("range = %q..%q", gotFrom, gotTo)
	}
}

func TestHTTPClient_CreateReturnsRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/bookings" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var b ExternalBooking
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ref": "ext-42"})
	}))
	defer srv.Close()

	ref, err := NewHTTPClient(srv.URL, "k").Create(context.Background(), ExternalBooking{Customer: "cust-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ref != "ext-42" {
		t.Fatalf("ref = %q", ref)
	}
}

func TestHTTPClient_CancelTreats404AsAlreadyCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewHTTPClient(srv.URL, "k").Cancel(context.Background(), "gone"); err != nil {
		t.Fatalf("Cancel of unknown ref must succeed, got %v", err)
	}
}

func TestHTTPClient_ServerFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k")
	if _, err := c.List(context.Background(), time.Now(), time.Now()); !errors.Is(err, ErrExternalUnreachable) {
		t.Fatalf("500: got %v, want ErrExternalUnreachable", err)
	}
	if err := c.Cancel(context.Background(), "ref"); !errors.Is(err, ErrExternalUnreachable) {
		t.Fatalf("500 cancel: got %v, want ErrExternalUnreachable", err)
	}

	srv.Close()
	if _, err := c.List(context.Background(), time.Now(), time.Now()); !errors.Is(err, ErrExternalUnreachable) {
		t.Fatalf("dead server: got %v, want ErrExternalUnreachable", err)
	}
}
