package tossparser

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseReturnsParsedToss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key123" {
			t.Fatalf("expected bearer credential, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(parseResponse{
			Topic:   "Lakers vs Celtics",
			Options: []string{"Lakers", "Celtics"},
			Stake:   0.5,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key123")
	parsed, perr := c.Parse("toss Lakers vs Celtics for 0.5")
	require.Nil(t, perr)
	require.Equal(t, "Lakers vs Celtics", parsed.Topic)
	require.Equal(t, [2]string{"Lakers", "Celtics"}, parsed.Options)
}

func TestParseAppliesDefaultStake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(parseResponse{
			Topic:   "rain tomorrow",
			Options: []string{"yes", "no"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key123")
	parsed, perr := c.Parse("will it rain tomorrow")
	if perr != nil {
		t.Fatalf("unexpected parse error: %v", perr)
	}
	if parsed.Stake <= 0 {
		t.Fatal("expected a positive default stake")
	}
}

func TestParseSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(parseResponse{Error: "ambiguous outcome"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key123")
	_, perr := c.Parse("something vague")
	require.NotNil(t, perr)
	require.Equal(t, "ambiguous outcome", perr.Reason)
}

func TestParseRejectsMissingOutcomes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(parseResponse{Topic: "", Options: nil})
	}))
	defer srv.Close()

	c := New(srv.URL, "key123")
	_, perr := c.Parse("")
	if perr == nil {
		t.Fatal("expected a parse error for an empty topic")
	}
}

func TestParseSurfacesTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:0", "key123")
	_, perr := c.Parse("toss something")
	if perr == nil {
		t.Fatal("expected a parse error when the service is unreachable")
	}
}
