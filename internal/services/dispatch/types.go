package dispatch

import "time"

// Config controls the webhook delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RequestTimeout  time.Duration
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
	HistorySize     int
}

// withDefaults fills unset fields. RetryMax 0 is a valid value (single
// attempt), so only negatives are clamped.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2048
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Delivery is one fired schedule waiting to be sent to its webhook.
type Delivery struct {
	ScheduleID   string
	Name         string
	Cron         string
	WebhookURL   string
	ScheduledFor time.Time // due minute, UTC
	FiredAt      time.Time
}

// HistoryItem is one finished delivery kept in the in-memory ring.
type HistoryItem struct {
	At         time.Time     `json:"at"`
	ScheduleID string        `json:"schedule_id"`
	Name       string        `json:"name,omitempty"`
	Status     string        `json:"status"` // "delivered" or "failed"
	HTTPStatus int           `json:"http_status,omitempty"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	Took       time.Duration `json:"took"`
}

// DeliveryEvent is emitted on the event bus for delivery lifecycle events.
// Keep it small; Data may be logged/serialized by subscribers.
type DeliveryEvent struct {
	ScheduleID   string    `json:"schedule_id"`
	Name         string    `json:"name,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Key          string    `json:"key,omitempty"`
	At           time.Time `json:"at"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Snapshot is a point-in-time view for status surfaces.
type Snapshot struct {
	Enabled  bool          `json:"enabled"`
	Running  bool          `json:"running"`
	Workers  int           `json:"workers"`
	QueueLen int           `json:"queue_len"`
	QueueCap int           `json:"queue_cap"`
	History  []HistoryItem `json:"-"`
}
