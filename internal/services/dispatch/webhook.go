package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"cronshift/internal/storage"
	"cronshift/pkg/cronx"
	"cronshift/pkg/logx"
)

// payload is the wire format POSTed to webhooks. Times are RFC 3339 in
// UTC; Summary is the human rendering of Cron.
type payload struct {
	ScheduleID   string    `json:"schedule_id"`
	Name         string    `json:"name,omitempty"`
	Cron         string    `json:"cron"`
	Summary      string    `json:"summary,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	FiredAt      time.Time `json:"fired_at"`
}

func (s *Service) deliverWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, client, log := s.cfg, s.limiter, s.client, s.log
	s.mu.Unlock()

	start := time.Now()
	d := j.d

	abort := func(msg string) {
		s.recordOutcome(d, storage.RunFailed, 1, 0, msg, time.Since(start))
		s.publish("delivery.failed", d, j.dedupKey, 0, msg)
	}

	url := strings.TrimSpace(d.WebhookURL)
	if url == "" {
		// Writes validate the URL, so only hand-edited storage gets here.
		abort("schedule has no webhook url")
		return
	}

	body, err := json.Marshal(payload{
		ScheduleID:   d.ScheduleID,
		Name:         d.Name,
		Cron:         d.Cron,
		Summary:      cronx.Summary(cronx.ParseOrDefault(d.Cron)),
		ScheduledFor: d.ScheduledFor.UTC(),
		FiredAt:      d.FiredAt.UTC(),
	})
	if err != nil {
		abort(err.Error())
		return
	}

	attempts := 1 + cfg.RetryMax
	var (
		lastStatus int
		lastErr    error
	)
	for n := 1; n <= attempts; n++ {
		if err := lim.Wait(ctx); err != nil {
			log.Debug("delivery abandoned during shutdown", logx.String("schedule", d.ScheduleID))
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		status, err := post(callCtx, client, url, body)
		cancel()
		if err == nil {
			took := time.Since(start)
			s.recordOutcome(d, storage.RunDelivered, n, status, "", took)
			s.publish("delivery.sent", d, j.dedupKey, status, "")
			log.Debug("webhook delivered",
				logx.String("schedule", d.ScheduleID), logx.Int("status", status),
				logx.Int("attempt", n), logx.Duration("took", took))
			return
		}
		lastStatus, lastErr = status, err
		log.Debug("webhook attempt failed",
			logx.String("schedule", d.ScheduleID), logx.Err(err),
			logx.Int("attempt", n), logx.Int("of", attempts))

		if n < attempts && !sleepCtx(ctx, retryDelay(cfg, n)) {
			return
		}
	}

	took := time.Since(start)
	msg := lastErr.Error()
	log.Warn("webhook delivery failed",
		logx.String("schedule", d.ScheduleID), logx.String("err", msg),
		logx.Int("attempts", attempts), logx.Duration("took", took))
	s.recordOutcome(d, storage.RunFailed, attempts, lastStatus, msg, took)
	s.publish("delivery.failed", d, j.dedupKey, lastStatus, msg)
}

// post sends one attempt. Any 2xx is delivered; other statuses become
// errors so they take the retry path. The status comes back either way
// for run records.
func post(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "cronshiftd")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	// Drain a little so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (s *Service) recordOutcome(d Delivery, status string, attempts, httpStatus int, errMsg string, took time.Duration) {
	s.appendHistory(HistoryItem{
		At:         time.Now(),
		ScheduleID: d.ScheduleID,
		Name:       d.Name,
		Status:     status,
		HTTPStatus: httpStatus,
		Attempts:   attempts,
		Error:      errMsg,
		Took:       took,
	})
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.store.AppendRun(ctx, storage.RunEntry{
		ScheduleID:   d.ScheduleID,
		Name:         d.Name,
		ScheduledFor: d.ScheduledFor,
		At:           time.Now().UTC(),
		Status:       status,
		Attempts:     attempts,
		Error:        errMsg,
		TookMS:       took.Milliseconds(),
	})
	if err != nil {
		s.log.Warn("failed to append run record", logx.String("schedule", d.ScheduleID), logx.Err(err))
	}
}

// retryDelay backs off exponentially from RetryBase, capped at
// RetryMaxDelay, with 0.7x..1.3x jitter so colliding retries spread out.
// attempt is the attempt that just failed.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)
	d = time.Duration(float64(d) * (0.7 + 0.6*rand.Float64()))
	return min(d, cfg.RetryMaxDelay)
}

// sleepCtx waits out d unless ctx ends first; reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
