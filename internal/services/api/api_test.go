package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"cronshift/internal/storage"
	"cronshift/pkg/cronx"
	"cronshift/pkg/logx"
)

func newTestAPI(t *testing.T, cfg Config, deps Deps) string {
	t.Helper()
	cfg.Enabled = true
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	svc := New(cfg, deps, logx.Nop())
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	addr := svc.Addr()
	if addr == "" {
		t.Fatal("api did not start")
	}
	return "http://" + addr
}

func doJSON(t *testing.T, method, rawURL, token string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, rawURL, rd)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func mustUnmarshal(t *testing.T, data []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(data, dst); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{Token: "sekrit"}, Deps{})

	status, body := doJSON(t, http.MethodGet, base+"/healthz", "", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz status = %d, want %d", status, http.StatusOK)
	}
	if string(body) != "ok" {
		t.Fatalf("healthz body = %q, want %q", body, "ok")
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{Token: "sekrit"}, Deps{})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "wrong bearer", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "right bearer", header: "Bearer sekrit", want: http.StatusOK},
		{name: "query token", query: "?token=sekrit", want: http.StatusOK},
		{name: "wrong query token", query: "?token=nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := http.NewRequest(http.MethodGet, base+"/v1/status"+tt.query, nil)
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRefusesNonLoopbackWithoutToken(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, Deps{}, logx.Nop())
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if addr := svc.Addr(); addr != "" {
		t.Fatalf("server bound %s, want refusal on unauthenticated non-loopback addr", addr)
	}
}

func TestRateLimitAnswers429(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{RatePerSec: 1, Burst: 1}, Deps{})

	status, _ := doJSON(t, http.MethodGet, base+"/v1/status", "", nil)
	if status != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", status, http.StatusOK)
	}
	status, body := doJSON(t, http.MethodGet, base+"/v1/status", "", nil)
	if status != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d (body %s)", status, http.StatusTooManyRequests, body)
	}
}

func TestCronParseEndpoint(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{})

	tests := []struct {
		name       string
		req        cronParseRequest
		wantStatus int
		wantCron   string
		wantFreq   cronx.Frequency
	}{
		{
			name:       "interval expression",
			req:        cronParseRequest{Cron: "*/15 * * * *"},
			wantStatus: http.StatusOK,
			wantCron:   "*/15 * * * *",
			wantFreq:   cronx.FreqMinute,
		},
		{
			name:       "lenient garbage falls back to daily midnight",
			req:        cronParseRequest{Cron: "every tuesday-ish"},
			wantStatus: http.StatusOK,
			wantCron:   "0 0 * * *",
			wantFreq:   cronx.FreqDay,
		},
		{
			name:       "strict garbage is rejected",
			req:        cronParseRequest{Cron: "every tuesday-ish", Strict: true},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "strict six fields is rejected",
			req:        cronParseRequest{Cron: "0 0 0 * * *", Strict: true},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, data := doJSON(t, http.MethodPost, base+"/v1/cron/parse", "", tt.req)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", status, tt.wantStatus, data)
			}
			if tt.wantStatus != http.StatusOK {
				var e errorResponse
				mustUnmarshal(t, data, &e)
				if e.Error == "" {
					t.Fatal("error response has empty message")
				}
				return
			}
			var out cronTranslationResponse
			mustUnmarshal(t, data, &out)
			if out.Cron != tt.wantCron {
				t.Fatalf("cron = %q, want %q", out.Cron, tt.wantCron)
			}
			if out.Parts.Frequency != tt.wantFreq {
				t.Fatalf("frequency = %q, want %q", out.Parts.Frequency, tt.wantFreq)
			}
			if out.Summary == "" {
				t.Fatal("summary is empty")
			}
		})
	}
}

func TestCronBuildEndpoint(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{})

	weekly := cronx.Parts{
		Frequency:  cronx.FreqWeek,
		Hour:       9,
		Minute:     30,
		DaysOfWeek: []int{1, 2, 3, 4, 5},
	}
	status, data := doJSON(t, http.MethodPost, base+"/v1/cron/build", "", cronBuildRequest{Parts: &weekly})
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", status, http.StatusOK, data)
	}
	var out cronTranslationResponse
	mustUnmarshal(t, data, &out)
	if want := "30 9 * * 1-5"; out.Cron != want {
		t.Fatalf("cron = %q, want %q", out.Cron, want)
	}
	if out.Summary == "" {
		t.Fatal("summary is empty")
	}

	bad := cronx.Parts{Frequency: cronx.FreqMinute, Interval: 0}
	status, _ = doJSON(t, http.MethodPost, base+"/v1/cron/build", "", cronBuildRequest{Parts: &bad})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid parts status = %d, want %d", status, http.StatusBadRequest)
	}

	status, _ = doJSON(t, http.MethodPost, base+"/v1/cron/build", "", cronBuildRequest{})
	if status != http.StatusBadRequest {
		t.Fatalf("missing parts status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestCronConvertEndpoints(t *testing.T) {
	t.Parallel()

	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	base := newTestAPI(t, Config{}, Deps{})

	daily := cronx.Parts{Frequency: cronx.FreqDay, Hour: 9, Minute: 30}

	status, data := doJSON(t, http.MethodPost, base+"/v1/cron/to-utc", "", cronConvertRequest{
		Parts:    &daily,
		Timezone: "America/New_York",
		Date:     "2026-01-15",
	})
	if status != http.StatusOK {
		t.Fatalf("to-utc status = %d, want %d (body %s)", status, http.StatusOK, data)
	}
	var conv cronConvertResponse
	mustUnmarshal(t, data, &conv)
	if want := "30 14 * * *"; conv.Cron != want {
		t.Fatalf("winter to-utc cron = %q, want %q (EST is UTC-5)", conv.Cron, want)
	}

	status, data = doJSON(t, http.MethodPost, base+"/v1/cron/to-utc", "", cronConvertRequest{
		Parts:    &daily,
		Timezone: "America/New_York",
		Date:     "2026-07-15",
	})
	if status != http.StatusOK {
		t.Fatalf("summer to-utc status = %d (body %s)", status, data)
	}
	mustUnmarshal(t, data, &conv)
	if want := "30 13 * * *"; conv.Cron != want {
		t.Fatalf("summer to-utc cron = %q, want %q (EDT is UTC-4)", conv.Cron, want)
	}

	status, data = doJSON(t, http.MethodPost, base+"/v1/cron/from-utc", "", cronConvertRequest{
		Cron:     "30 14 * * 1-5",
		Timezone: "America/New_York",
		Date:     "2026-01-15",
	})
	if status != http.StatusOK {
		t.Fatalf("from-utc status = %d (body %s)", status, data)
	}
	mustUnmarshal(t, data, &conv)
	if conv.Parts.Hour != 9 || conv.Parts.Minute != 30 {
		t.Fatalf("from-utc time = %d:%02d, want 9:30", conv.Parts.Hour, conv.Parts.Minute)
	}
	if len(conv.Parts.DaysOfWeek) != 5 || conv.Parts.DaysOfWeek[0] != 1 {
		t.Fatalf("from-utc days = %v, want weekdays", conv.Parts.DaysOfWeek)
	}

	errCases := []struct {
		name string
		path string
		req  cronConvertRequest
	}{
		{name: "missing timezone", path: "/v1/cron/to-utc", req: cronConvertRequest{Parts: &daily}},
		{name: "unknown timezone", path: "/v1/cron/to-utc", req: cronConvertRequest{Parts: &daily, Timezone: "Mars/Olympus"}},
		{name: "bad date", path: "/v1/cron/to-utc", req: cronConvertRequest{Parts: &daily, Timezone: "UTC", Date: "January 15"}},
		{name: "missing parts", path: "/v1/cron/to-utc", req: cronConvertRequest{Timezone: "UTC"}},
		{name: "bad cron", path: "/v1/cron/from-utc", req: cronConvertRequest{Cron: "not cron", Timezone: "UTC"}},
	}
	for _, tt := range errCases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, data := doJSON(t, http.MethodPost, base+tt.path, "", tt.req)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", status, http.StatusBadRequest, data)
			}
		})
	}
}

func TestScheduleCRUD(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{Store: storage.NewMemory()})

	status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name:       "ping",
		Cron:       "*/15 * * * *",
		WebhookURL: "http://example.com/hook",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (body %s)", status, http.StatusCreated, data)
	}
	var created scheduleView
	mustUnmarshal(t, data, &created)
	if created.ID == "" {
		t.Fatal("created schedule has no id")
	}
	if !created.Enabled {
		t.Fatal("schedule should default to enabled")
	}
	if created.Summary == "" {
		t.Fatal("created schedule has no summary")
	}
	if created.NextRun == nil {
		t.Fatal("enabled schedule has no next_run")
	}

	status, data = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID, "", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d (body %s)", status, data)
	}
	var got scheduleView
	mustUnmarshal(t, data, &got)
	if got.Name != "ping" || got.Cron != "*/15 * * * *" {
		t.Fatalf("get returned %q %q, want ping */15 * * * *", got.Name, got.Cron)
	}

	status, data = doJSON(t, http.MethodPut, base+"/v1/schedules/"+created.ID, "", scheduleRequest{
		Name:       "ping-prod",
		Cron:       "0 */2 * * *",
		WebhookURL: "https://example.com/hook",
		Enabled:    boolPtr(false),
	})
	if status != http.StatusOK {
		t.Fatalf("update status = %d (body %s)", status, data)
	}
	var updated scheduleView
	mustUnmarshal(t, data, &updated)
	if updated.Name != "ping-prod" || updated.Enabled {
		t.Fatalf("update returned name=%q enabled=%v, want ping-prod disabled", updated.Name, updated.Enabled)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("update changed created_at: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}
	if updated.NextRun != nil {
		t.Fatal("disabled schedule should not report next_run")
	}

	status, data = doJSON(t, http.MethodGet, base+"/v1/schedules", "", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d (body %s)", status, data)
	}
	var list scheduleListResponse
	mustUnmarshal(t, data, &list)
	if len(list.Schedules) != 1 || list.Schedules[0].ID != created.ID {
		t.Fatalf("list = %+v, want single schedule %s", list.Schedules, created.ID)
	}

	status, _ = doJSON(t, http.MethodDelete, base+"/v1/schedules/"+created.ID, "", nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", status, http.StatusNoContent)
	}
	status, _ = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", status, http.StatusNotFound)
	}
	status, _ = doJSON(t, http.MethodDelete, base+"/v1/schedules/"+created.ID, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestScheduleCreateFromParts(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{Store: storage.NewMemory()})

	daily := cronx.Parts{Frequency: cronx.FreqDay, Hour: 9, Minute: 30}
	status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name:       "report",
		Parts:      &daily,
		Timezone:   "UTC",
		WebhookURL: "https://example.com/report",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", status, data)
	}
	var created scheduleView
	mustUnmarshal(t, data, &created)
	if want := "30 9 * * *"; created.Cron != want {
		t.Fatalf("stored cron = %q, want %q", created.Cron, want)
	}
	if created.Warning != "" {
		t.Fatalf("unexpected warning: %s", created.Warning)
	}
}

func TestScheduleCreateSurfacesClampWarning(t *testing.T) {
	t.Parallel()

	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	base := newTestAPI(t, Config{}, Deps{Store: storage.NewMemory()})

	// 23:30 on the 31st in New York lands on the 32nd in UTC whichever
	// DST rule applies, so the day clamps and the write must say so.
	monthly := cronx.Parts{Frequency: cronx.FreqMonth, Hour: 23, Minute: 30, DayOfMonth: 31}
	status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name:       "month-end",
		Parts:      &monthly,
		Timezone:   "America/New_York",
		WebhookURL: "https://example.com/month-end",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", status, data)
	}
	var created scheduleView
	mustUnmarshal(t, data, &created)
	if created.Warning == "" {
		t.Fatal("clamped conversion should surface a warning")
	}
	if !strings.Contains(created.Cron, " 31 ") {
		t.Fatalf("stored cron = %q, want day clamped to 31", created.Cron)
	}
}

func TestScheduleValidationErrors(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{Store: storage.NewMemory()})

	daily := cronx.Parts{Frequency: cronx.FreqDay, Hour: 9, Minute: 0}
	tests := []struct {
		name string
		req  scheduleRequest
	}{
		{
			name: "missing name",
			req:  scheduleRequest{Cron: "* * * * *", WebhookURL: "http://example.com"},
		},
		{
			name: "missing webhook",
			req:  scheduleRequest{Name: "x", Cron: "* * * * *"},
		},
		{
			name: "webhook wrong scheme",
			req:  scheduleRequest{Name: "x", Cron: "* * * * *", WebhookURL: "ftp://example.com"},
		},
		{
			name: "webhook not absolute",
			req:  scheduleRequest{Name: "x", Cron: "* * * * *", WebhookURL: "/hook"},
		},
		{
			name: "cron and parts together",
			req:  scheduleRequest{Name: "x", Cron: "* * * * *", Parts: &daily, WebhookURL: "http://example.com"},
		},
		{
			name: "neither cron nor parts",
			req:  scheduleRequest{Name: "x", WebhookURL: "http://example.com"},
		},
		{
			name: "unknown timezone",
			req:  scheduleRequest{Name: "x", Cron: "* * * * *", Timezone: "Nowhere/Void", WebhookURL: "http://example.com"},
		},
		{
			name: "invalid cron",
			req:  scheduleRequest{Name: "x", Cron: "every 5 minutes", WebhookURL: "http://example.com"},
		},
		{
			name: "invalid parts",
			req:  scheduleRequest{Name: "x", Parts: &cronx.Parts{Frequency: cronx.FreqMinute}, WebhookURL: "http://example.com"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", tt.req)
			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", status, http.StatusBadRequest, data)
			}
			var e errorResponse
			mustUnmarshal(t, data, &e)
			if e.Error == "" {
				t.Fatal("error response has empty message")
			}
		})
	}
}

func TestScheduleEndpointsWithoutStore(t *testing.T) {
	t.Parallel()

	base := newTestAPI(t, Config{}, Deps{})

	status, _ := doJSON(t, http.MethodGet, base+"/v1/schedules", "", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("list status = %d, want %d", status, http.StatusServiceUnavailable)
	}
	status, _ = doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name: "x", Cron: "* * * * *", WebhookURL: "http://example.com",
	})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("create status = %d, want %d", status, http.StatusServiceUnavailable)
	}
}

func TestSchedulePreviewEndpoint(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	base := newTestAPI(t, Config{}, Deps{Store: store})

	status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name:       "tick",
		Cron:       "*/15 * * * *",
		WebhookURL: "http://example.com/tick",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", status, data)
	}
	var created scheduleView
	mustUnmarshal(t, data, &created)

	status, data = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID+"/preview?n=3", "", nil)
	if status != http.StatusOK {
		t.Fatalf("preview status = %d (body %s)", status, data)
	}
	var preview schedulePreviewResponse
	mustUnmarshal(t, data, &preview)
	if len(preview.Times) != 3 {
		t.Fatalf("preview returned %d times, want 3", len(preview.Times))
	}
	for i, ts := range preview.Times {
		if ts.Minute()%15 != 0 {
			t.Fatalf("preview[%d] = %v, want minute divisible by 15", i, ts)
		}
		if i > 0 && !preview.Times[i-1].Before(ts) {
			t.Fatalf("preview times not ascending: %v then %v", preview.Times[i-1], ts)
		}
	}

	status, _ = doJSON(t, http.MethodGet, base+"/v1/schedules/nope/preview", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown schedule preview status = %d, want %d", status, http.StatusNotFound)
	}

	status, _ = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID+"/preview?n=zero", "", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad n status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestScheduleRunsEndpoint(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	base := newTestAPI(t, Config{}, Deps{Store: store})

	status, data := doJSON(t, http.MethodPost, base+"/v1/schedules", "", scheduleRequest{
		Name:       "job",
		Cron:       "0 6 * * *",
		WebhookURL: "http://example.com/job",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", status, data)
	}
	var created scheduleView
	mustUnmarshal(t, data, &created)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := store.AppendRun(ctx, storage.RunEntry{
			ScheduleID:   created.ID,
			Name:         "job",
			ScheduledFor: time.Date(2026, 3, 1+i, 6, 0, 0, 0, time.UTC),
			At:           time.Date(2026, 3, 1+i, 6, 0, 1, 0, time.UTC),
			Status:       storage.RunDelivered,
			Attempts:     1,
		})
		if err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}

	status, data = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID+"/runs", "", nil)
	if status != http.StatusOK {
		t.Fatalf("runs status = %d (body %s)", status, data)
	}
	var runs scheduleRunsResponse
	mustUnmarshal(t, data, &runs)
	if len(runs.Runs) != 3 {
		t.Fatalf("runs returned %d entries, want 3", len(runs.Runs))
	}
	if !runs.Runs[0].At.After(runs.Runs[2].At) {
		t.Fatalf("runs not newest-first: %v before %v", runs.Runs[0].At, runs.Runs[2].At)
	}

	status, data = doJSON(t, http.MethodGet, base+"/v1/schedules/"+created.ID+"/runs?limit=1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("limited runs status = %d (body %s)", status, data)
	}
	mustUnmarshal(t, data, &runs)
	if len(runs.Runs) != 1 {
		t.Fatalf("limited runs returned %d entries, want 1", len(runs.Runs))
	}

	status, _ = doJSON(t, http.MethodGet, base+"/v1/schedules/nope/runs", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown schedule runs status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	if err := store.PutSchedule(context.Background(), storage.Schedule{
		ID: "s1", Name: "one", Cron: "0 6 * * *", WebhookURL: "http://example.com", Enabled: true,
	}); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	base := newTestAPI(t, Config{}, Deps{Store: store})

	status, data := doJSON(t, http.MethodGet, base+"/v1/status", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status endpoint = %d (body %s)", status, data)
	}
	var out statusResponse
	mustUnmarshal(t, data, &out)
	if out.Status != "ok" {
		t.Fatalf("status = %q, want ok", out.Status)
	}
	if !out.Storage.Enabled || out.Storage.Schedules != 1 {
		t.Fatalf("storage section = %+v, want enabled with 1 schedule", out.Storage)
	}
}

func boolPtr(b bool) *bool { return &b }
