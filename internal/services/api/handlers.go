package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cronshift/internal/services/scheduler"
	"cronshift/internal/storage"
	"cronshift/pkg/cronx"
	"cronshift/pkg/logx"
)

// 64KB is plenty for schedule edits and translation calls.
const maxRequestBody = 64 * 1024

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 50
	defaultRunsLimit    = 50
	maxRunsLimit        = 500
)

func (s *Service) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/cron/parse", s.handleCronParse)
	mux.HandleFunc("POST /v1/cron/build", s.handleCronBuild)
	mux.HandleFunc("POST /v1/cron/to-utc", s.handleCronToUTC)
	mux.HandleFunc("POST /v1/cron/from-utc", s.handleCronFromUTC)

	mux.HandleFunc("GET /v1/schedules", s.handleScheduleList)
	mux.HandleFunc("POST /v1/schedules", s.handleScheduleCreate)
	mux.HandleFunc("GET /v1/schedules/{id}", s.handleScheduleGet)
	mux.HandleFunc("PUT /v1/schedules/{id}", s.handleScheduleUpdate)
	mux.HandleFunc("DELETE /v1/schedules/{id}", s.handleScheduleDelete)
	mux.HandleFunc("GET /v1/schedules/{id}/runs", s.handleScheduleRuns)
	mux.HandleFunc("GET /v1/schedules/{id}/preview", s.handleSchedulePreview)

	mux.HandleFunc("GET /v1/status", s.handleStatus)

	return mux
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// --- translation endpoints -------------------------------------------------

func (s *Service) handleCronParse(w http.ResponseWriter, r *http.Request) {
	var req cronParseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var parts cronx.Parts
	if req.Strict {
		p, err := cronx.Parse(req.Cron)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		parts = p
	} else {
		parts = cronx.ParseOrDefault(req.Cron)
	}

	writeJSON(w, http.StatusOK, cronTranslationResponse{
		Cron:    cronx.Build(parts),
		Parts:   parts,
		Summary: cronx.Summary(parts),
	})
}

func (s *Service) handleCronBuild(w http.ResponseWriter, r *http.Request) {
	var req cronBuildRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Parts == nil {
		respondError(w, http.StatusBadRequest, "parts is required")
		return
	}
	if _, err := req.Parts.Schedule(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cronTranslationResponse{
		Cron:    cronx.Build(*req.Parts),
		Parts:   *req.Parts,
		Summary: cronx.Summary(*req.Parts),
	})
}

func (s *Service) handleCronToUTC(w http.ResponseWriter, r *http.Request) {
	var req cronConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Parts == nil {
		respondError(w, http.StatusBadRequest, "parts is required")
		return
	}
	if _, err := req.Parts.Schedule(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc, on, err := resolveZone(req.Timezone, req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv := cronx.ToUTC(*req.Parts, loc, on)
	writeJSON(w, http.StatusOK, cronConvertResponse{
		Cron:    conv.Cron,
		Parts:   conv.Parts,
		Summary: cronx.Summary(conv.Parts),
		Warning: conv.Warning,
	})
}

func (s *Service) handleCronFromUTC(w http.ResponseWriter, r *http.Request) {
	var req cronConvertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Reject malformed input loudly instead of converting the default.
	if _, err := cronx.Parse(req.Cron); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	loc, on, err := resolveZone(req.Timezone, req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv := cronx.FromUTC(req.Cron, loc, on)
	writeJSON(w, http.StatusOK, cronConvertResponse{
		Cron:    conv.Cron,
		Parts:   conv.Parts,
		Summary: cronx.Summary(conv.Parts),
		Warning: conv.Warning,
	})
}

// resolveZone loads the IANA zone and the reference instant the offset
// is taken at. An empty date means "now"; otherwise the date resolves
// at midday in loc so DST transition hours cannot skew the offset.
func resolveZone(tz, date string) (*time.Location, time.Time, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return nil, time.Time{}, fmt.Errorf("timezone is required")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("unknown timezone %q", tz)
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return loc, time.Time{}, nil
	}
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return loc, d.Add(12 * time.Hour), nil
}

// --- schedule endpoints ----------------------------------------------------

func (s *Service) handleScheduleList(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	scheds, err := st.ListSchedules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]scheduleView, 0, len(scheds))
	for _, sc := range scheds {
		views = append(views, newScheduleView(sc, ""))
	}
	writeJSON(w, http.StatusOK, scheduleListResponse{Schedules: views})
}

func (s *Service) handleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sched, warning, err := resolveSchedule(req, newID(), nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.PutSchedule(r.Context(), sched); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Upsert(sched)
	}
	s.log.Info("schedule created", logx.String("id", sched.ID), logx.String("cron", sched.Cron), logx.Bool("enabled", sched.Enabled))
	writeJSON(w, http.StatusCreated, newScheduleView(sched, warning))
}

func (s *Service) handleScheduleGet(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	sched, ok, err := st.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}
	writeJSON(w, http.StatusOK, newScheduleView(sched, ""))
}

func (s *Service) handleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	id := r.PathValue("id")
	existing, ok, err := st.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}

	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sched, warning, err := resolveSchedule(req, id, &existing)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := st.PutSchedule(r.Context(), sched); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Upsert(sched)
	}
	s.log.Info("schedule updated", logx.String("id", sched.ID), logx.String("cron", sched.Cron), logx.Bool("enabled", sched.Enabled))
	writeJSON(w, http.StatusOK, newScheduleView(sched, warning))
}

func (s *Service) handleScheduleDelete(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	id := r.PathValue("id")
	ok, err := st.DeleteSchedule(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Remove(id)
	}
	s.log.Info("schedule deleted", logx.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleScheduleRuns(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	id := r.PathValue("id")
	_, ok, err := st.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}

	limit, err := queryInt(r, "limit", defaultRunsLimit, maxRunsLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := st.ListRuns(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []storage.RunEntry{}
	}
	writeJSON(w, http.StatusOK, scheduleRunsResponse{ScheduleID: id, Runs: runs})
}

func (s *Service) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Store
	if st == nil {
		respondError(w, http.StatusServiceUnavailable, storage.ErrDisabled.Error())
		return
	}
	id := r.PathValue("id")
	sched, ok, err := st.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "schedule not found")
		return
	}

	n, err := queryInt(r, "n", defaultPreviewCount, maxPreviewCount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	times, err := scheduler.PreviewNext(sched.Cron, time.Now(), n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, schedulePreviewResponse{
		ScheduleID: id,
		Cron:       sched.Cron,
		Times:      times,
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:    "ok",
		StartedAt: s.startedAt,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.deps.Scheduler != nil {
		snap := s.deps.Scheduler.Snapshot()
		resp.Scheduler = &snap
	}
	if s.deps.Dispatch != nil {
		snap := s.deps.Dispatch.Snapshot()
		resp.Dispatch = &snap
	}
	if s.deps.Supervisor != nil {
		snap := s.deps.Supervisor.Snapshot()
		resp.Supervisor = &snap
	}
	if st := s.deps.Store; st != nil {
		resp.Storage.Enabled = true
		if scheds, err := st.ListSchedules(r.Context()); err == nil {
			resp.Storage.Schedules = len(scheds)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- request plumbing ------------------------------------------------------

// resolveSchedule turns a write request into a storage record. Exactly
// one of cron (strict canonical text, stored UTC) or parts (wall-clock
// in the request timezone, converted to UTC before storing) must be
// set. For updates, existing pins ID and CreatedAt.
func resolveSchedule(req scheduleRequest, id string, existing *storage.Schedule) (storage.Schedule, string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return storage.Schedule{}, "", fmt.Errorf("name is required")
	}
	webhook, err := checkWebhookURL(req.WebhookURL)
	if err != nil {
		return storage.Schedule{}, "", err
	}

	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return storage.Schedule{}, "", fmt.Errorf("unknown timezone %q", tz)
	}

	var (
		cronText string
		warning  string
	)
	switch {
	case strings.TrimSpace(req.Cron) != "" && req.Parts != nil:
		return storage.Schedule{}, "", fmt.Errorf("specify cron or parts, not both")
	case strings.TrimSpace(req.Cron) != "":
		// Cron text is taken as already-UTC; the timezone is recorded
		// for display only.
		p, err := cronx.Parse(req.Cron)
		if err != nil {
			return storage.Schedule{}, "", err
		}
		cronText = cronx.Build(p)
	case req.Parts != nil:
		if _, err := req.Parts.Schedule(); err != nil {
			return storage.Schedule{}, "", err
		}
		conv := cronx.ToUTC(*req.Parts, loc, time.Time{})
		cronText = conv.Cron
		warning = conv.Warning
	default:
		return storage.Schedule{}, "", fmt.Errorf("cron or parts is required")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	sched := storage.Schedule{
		ID:         id,
		Name:       name,
		Cron:       cronText,
		Timezone:   tz,
		WebhookURL: webhook,
		Enabled:    enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		sched.CreatedAt = existing.CreatedAt
	}
	return sched, warning, nil
}

func checkWebhookURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("webhook_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("webhook_url must be an absolute http(s) url")
	}
	return raw, nil
}

func queryInt(r *http.Request, key string, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	if n > max {
		n = max
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func newID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b[:])
}
