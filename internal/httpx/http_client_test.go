package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func restoreTimeout(t *testing.T) {
	t.Helper()
	original := externalHTTPClient.Timeout
	t.Cleanup(func() {
		externalHTTPClient.Timeout = original
	})
}

func TestExternalHTTPClientDefaults(t *testing.T) {
	c := ExternalHTTPClient()
	if c == nil {
		t.Fatal("ExternalHTTPClient must not return nil")
	}
	if c.Timeout != defaultExternalHTTPTimeout {
		t.Fatalf("default timeout = %s, want %s", c.Timeout, defaultExternalHTTPTimeout)
	}
}

func TestConfigureExternalHTTPClient(t *testing.T) {
	restoreTimeout(t)

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{seconds: 0, want: defaultExternalHTTPTimeout},
		{seconds: -5, want: defaultExternalHTTPTimeout},
		{seconds: 120, want: 120 * time.Second},
		{seconds: 5, want: 5 * time.Second},
	}
	for _, tt := range tests {
		got := ConfigureExternalHTTPClient(tt.seconds)
		if got != tt.want {
			t.Fatalf("ConfigureExternalHTTPClient(%d) = %s, want %s", tt.seconds, got, tt.want)
		}
		if ExternalHTTPClient().Timeout != tt.want {
			t.Fatalf("shared client timeout = %s after ConfigureExternalHTTPClient(%d), want %s",
				ExternalHTTPClient().Timeout, tt.seconds, tt.want)
		}
	}
}

func TestExternalHTTPClientIsShared(t *testing.T) {
	restoreTimeout(t)

	before := ExternalHTTPClient()
	ConfigureExternalHTTPClient(30)
	if ExternalHTTPClient() != before {
		t.Fatal("configuring the timeout must not replace the shared client")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := ExternalHTTPClient().Get(srv.URL)
	if err != nil {
		t.Fatalf("request through shared client: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}
