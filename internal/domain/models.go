package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

type TargetID string

type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolTCP  Protocol = "tcp"
	ProtocolDNS  Protocol = "dns"
	ProtocolPing Protocol = "ping"
)

// MinInterval is the floor applied to every polling interval.
const MinInterval = time.Second

const (
	DefaultMethod         = "GET"
	DefaultExpectedStatus = 200
	DefaultPort           = 80
	DefaultPacketCount    = 4
	DefaultRecordType     = "A"
)

var (
	httpMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH"}
	recordTypes = []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"}
)

// Target is a monitored endpoint. The engine copies it at the start of each
// probe cycle, so edits made through the registry apply on the next cycle.
type Target struct {
	ID          TargetID `json:"id"`
	Name        string   `json:"name"`
	Protocol    Protocol `json:"protocol"`
	Address     string   `json:"address"`
	IntervalSec int      `json:"interval"`
	Paused      bool     `json:"paused"`
	Labels      []string `json:"labels,omitempty"`

	// http
	Method           string            `json:"method,omitempty"`
	ExpectedStatus   int               `json:"expected_status,omitempty"`
	Headers          Headers           `json:"headers,omitempty"`
	Body             string            `json:"body,omitempty"`
	CheckCertificate bool              `json:"check_certificate,omitempty"`

	// tcp
	Port int `json:"port,omitempty"`

	// dns
	DNSServer   string `json:"dns_server,omitempty"`
	RecordType  string `json:"dns_record_type,omitempty"`
	DNSExpected string `json:"dns_expected,omitempty"`

	// ping
	PacketCount int `json:"packet_count,omitempty"`

	ProxyURL string `json:"proxy_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Interval returns the polling interval with MinInterval enforced.
func (t *Target) Interval() time.Duration {
	d := time.Duration(t.IntervalSec) * time.Second
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// Clone returns a deep copy safe to hand to a probe.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}
	c := *t
	c.Labels = slices.Clone(t.Labels)
	if t.Headers != nil {
		c.Headers = make(map[string]string, len(t.Headers))
		for k, v := range t.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// HasLabel reports whether the target carries the given label.
func (t *Target) HasLabel(label string) bool {
	return slices.Contains(t.Labels, label)
}

// ApplyDefaults fills in protocol defaults for unset fields.
func (t *Target) ApplyDefaults() {
	t.Protocol = Protocol(strings.ToLower(strings.TrimSpace(string(t.Protocol))))
	t.Address = strings.TrimSpace(t.Address)
	if t.Name == "" {
		t.Name = t.Address
	}
	switch t.Protocol {
	case ProtocolHTTP:
		t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
		if t.Method == "" {
			t.Method = DefaultMethod
		}
		if t.ExpectedStatus == 0 {
			t.ExpectedStatus = DefaultExpectedStatus
		}
	case ProtocolTCP:
		if t.Port == 0 {
			t.Port = DefaultPort
		}
	case ProtocolDNS:
		t.RecordType = strings.ToUpper(strings.TrimSpace(t.RecordType))
		if t.RecordType == "" {
			t.RecordType = DefaultRecordType
		}
	case ProtocolPing:
		if t.PacketCount == 0 {
			t.PacketCount = DefaultPacketCount
		}
	}
}

// Validate rejects malformed definitions before they reach a probe.
func (t *Target) Validate() error {
	if t.IntervalSec < int(MinInterval/time.Second) {
		return configErr("interval", "must be at least %s", MinInterval)
	}
	if t.Address == "" {
		return configErr("address", "is required")
	}
	switch t.Protocol {
	case ProtocolHTTP:
		u, err := url.Parse(t.Address)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return configErr("address", "must be an http(s) URL, got %q", t.Address)
		}
		if !slices.Contains(httpMethods, t.Method) {
			return configErr("method", "unsupported method %q", t.Method)
		}
		if t.ExpectedStatus < 100 || t.ExpectedStatus > 599 {
			return configErr("expected_status", "must be a valid HTTP status, got %d", t.ExpectedStatus)
		}
	case ProtocolTCP:
		if t.Port < 1 || t.Port > 65535 {
			return configErr("port", "must be in 1..65535, got %d", t.Port)
		}
	case ProtocolDNS:
		if !slices.Contains(recordTypes, t.RecordType) {
			return configErr("dns_record_type", "unsupported record type %q", t.RecordType)
		}
	case ProtocolPing:
		if t.PacketCount < 1 || t.PacketCount > 100 {
			return configErr("packet_count", "must be in 1..100, got %d", t.PacketCount)
		}
	default:
		return configErr("protocol", "unknown protocol %q", t.Protocol)
	}
	if t.ProxyURL != "" {
		u, err := url.Parse(t.ProxyURL)
		if err != nil || u.Host == "" {
			return configErr("proxy_url", "invalid proxy URL %q", t.ProxyURL)
		}
	}
	return nil
}

// Host extracts the hostname from an address that may be a URL or a bare
// host (optionally with a port).
func Host(address string) string {
	if strings.Contains(address, "://") {
		if u, err := url.Parse(address); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if h, _, err := net.SplitHostPort(address); err == nil {
		return h
	}
	return address
}

// Headers are request headers. In JSON they may be an object or a string
// holding a JSON object.
type Headers map[string]string

func (h *Headers) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseHeaders(raw)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return configErr("headers", "must be a JSON object of strings: %v", err)
	}
	*h = m
	return nil
}

// ParseHeaders decodes a header payload given as a JSON object string.
// An empty string yields no headers.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var h map[string]string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, configErr("headers", "must be a JSON object of strings: %v", err)
	}
	return h, nil
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
