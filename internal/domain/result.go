package domain

import "time"

type Status string

const (
	StatusUp      Status = "up"
	StatusDown    Status = "down"
	StatusUnknown Status = "unknown"
)

// Failure reasons recorded on down observations.
const (
	ReasonTimeout        = "timeout"
	ReasonHTTPError      = "http_error"
	ReasonStatusMismatch = "status_mismatch"
	ReasonConnect        = "connect_error"
	ReasonDNSError       = "dns_error"
	ReasonNoRecords      = "no_records"
	ReasonRecordMismatch = "record_mismatch"
	ReasonPacketLoss     = "packet_loss"
	ReasonPingError      = "ping_error"
	ReasonCanceled       = "canceled"
)

type CertInfo struct {
	Issuer        string    `json:"issuer"`
	Subject       string    `json:"subject"`
	ValidFrom     time.Time `json:"valid_from"`
	ValidTo       time.Time `json:"valid_to"`
	DaysRemaining int       `json:"days_remaining"`
}

type PingInfo struct {
	MinMS      float64 `json:"min_ms"`
	MaxMS      float64 `json:"max_ms"`
	AvgMS      float64 `json:"avg_ms"`
	PacketLoss float64 `json:"packet_loss"`
}

type DNSInfo struct {
	Records []string `json:"records"`
	Server  string   `json:"server"`
}

// Observation is the immutable record of one probe execution. Seq is
// assigned by the log store and breaks ties between equal timestamps.
type Observation struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	TargetID   TargetID  `json:"target_id"`
	Status     Status    `json:"status"`
	LatencyMS  float64   `json:"latency_ms"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Cert       *CertInfo `json:"certificate,omitempty"`
	Ping       *PingInfo `json:"ping,omitempty"`
	DNS        *DNSInfo  `json:"dns,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

func (o *Observation) Up() bool { return o.Status == StatusUp }

// TargetState is the derived current status of one target. It always
// reflects the most recently appended observation.
type TargetState struct {
	TargetID      TargetID  `json:"target_id"`
	Status        Status    `json:"status"`
	LastCheckedAt time.Time `json:"last_checked_at,omitempty"`
	LastLatencyMS float64   `json:"last_latency_ms"`
	LastError     string    `json:"last_error,omitempty"`
}

// UnknownState is the state of a target that has never been observed.
func UnknownState(id TargetID) TargetState {
	return TargetState{TargetID: id, Status: StatusUnknown}
}

type StateChange struct {
	TargetID    TargetID     `json:"target_id"`
	Previous    Status       `json:"previous"`
	Current     Status       `json:"current"`
	Observation *Observation `json:"observation"`
}

// NotificationConfig is the single global notification record.
type NotificationConfig struct {
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`
	Enabled          bool   `json:"enabled"`
}

// Active reports whether the Telegram channel can deliver.
func (c NotificationConfig) Active() bool {
	return c.Enabled && c.TelegramBotToken != "" && c.TelegramChatID != ""
}
