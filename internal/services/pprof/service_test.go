package pprof

import (
	"context"
	"net/http"
	"testing"
	"time"

	"cronshift/pkg/logx"
)

func startTestServer(t *testing.T, cfg Config) (*Service, string) {
	t.Helper()
	cfg.Enabled = true
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	svc := New(cfg, logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, svc.Addr()
}

func get(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestServesIndexAndHealthz(t *testing.T) {
	t.Parallel()

	_, addr := startTestServer(t, Config{})
	if addr == "" {
		t.Fatal("server did not start")
	}

	if code := get(t, "http://"+addr+"/healthz"); code != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", code, http.StatusOK)
	}
	if code := get(t, "http://"+addr+"/debug/pprof/"); code != http.StatusOK {
		t.Fatalf("index status = %d, want %d", code, http.StatusOK)
	}
}

func TestTokenGuardsEveryEndpoint(t *testing.T) {
	t.Parallel()

	_, addr := startTestServer(t, Config{Token: "sekrit"})
	if addr == "" {
		t.Fatal("server did not start")
	}

	if code := get(t, "http://"+addr+"/debug/pprof/"); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated index status = %d, want %d", code, http.StatusUnauthorized)
	}
	if code := get(t, "http://"+addr+"/healthz"); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated healthz status = %d, want %d", code, http.StatusUnauthorized)
	}
	if code := get(t, "http://"+addr+"/debug/pprof/?token=sekrit"); code != http.StatusOK {
		t.Fatalf("token index status = %d, want %d", code, http.StatusOK)
	}
}

func TestCustomPrefix(t *testing.T) {
	t.Parallel()

	_, addr := startTestServer(t, Config{Prefix: "/ops/prof"})
	if addr == "" {
		t.Fatal("server did not start")
	}

	if code := get(t, "http://"+addr+"/ops/prof/"); code != http.StatusOK {
		t.Fatalf("prefixed index status = %d, want %d", code, http.StatusOK)
	}
}

func TestRefusesNonLoopbackWithoutToken(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if addr := svc.Addr(); addr != "" {
		t.Fatalf("server bound %s, want refusal on unauthenticated non-loopback addr", addr)
	}
}
