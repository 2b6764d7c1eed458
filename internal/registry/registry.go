// Package registry loads target definitions from a YAML file and keeps them
// in sync while the file changes.
//
// Example file:
//
//	targets:
//	  - id: api
//	    name: Public API
//	    protocol: http
//	    address: https://api.example.com/health
//	    interval: 30s
//	    headers:
//	      Authorization: "Bearer ${API_TOKEN}"
//	  - id: db
//	    protocol: tcp
//	    address: db.internal
//	    port: 5432
//	    interval: 1m
package registry

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pingwatch/internal/domain"
)

type File struct {
	Targets []TargetConfig `yaml:"targets"`
}

type TargetConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Protocol string   `yaml:"protocol"`
	Address  string   `yaml:"address"`
	Interval Duration `yaml:"interval"`
	Paused   bool     `yaml:"paused"`
	Labels   []string `yaml:"labels"`

	Method           string  `yaml:"method"`
	ExpectedStatus   int     `yaml:"expected_status"`
	Headers          Headers `yaml:"headers"`
	Body             string  `yaml:"body"`
	CheckCertificate bool    `yaml:"check_certificate"`

	Port int `yaml:"port"`

	DNSServer   string `yaml:"dns_server"`
	RecordType  string `yaml:"dns_record_type"`
	DNSExpected string `yaml:"dns_expected"`

	PacketCount int `yaml:"packet_count"`

	Proxy string `yaml:"proxy"`
}

// Duration accepts either a Go duration string or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var secs int
	if err := node.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Headers accepts a mapping or a JSON object encoded as a string.
type Headers map[string]string

func (h *Headers) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var raw string
		if err := node.Decode(&raw); err != nil {
			return err
		}
		parsed, err := domain.ParseHeaders(raw)
		if err != nil {
			return err
		}
		*h = parsed
		return nil
	}
	var m map[string]string
	if err := node.Decode(&m); err != nil {
		return err
	}
	*h = m
	return nil
}

func Load(path string) ([]*domain.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a targets file. Every problem is reported,
// not just the first.
func Parse(data []byte) ([]*domain.Target, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	var (
		errs error
		out  = make([]*domain.Target, 0, len(f.Targets))
		seen = make(map[string]bool, len(f.Targets))
	)
	for i, tc := range f.Targets {
		where := fmt.Sprintf("targets[%d]", i)
		if tc.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: id is required", where))
			continue
		}
		where = fmt.Sprintf("targets[%d] (%s)", i, tc.ID)
		if seen[tc.ID] {
			errs = multierr.Append(errs, fmt.Errorf("%s: duplicate id", where))
			continue
		}
		seen[tc.ID] = true

		t, err := tc.target()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", where, err))
			continue
		}
		t.ApplyDefaults()
		if err := t.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", where, err))
			continue
		}
		out = append(out, t)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func (tc TargetConfig) target() (*domain.Target, error) {
	iv := tc.Interval.Duration()
	if iv%time.Second != 0 {
		return nil, &domain.ConfigError{Field: "interval", Msg: "must be a whole number of seconds"}
	}
	address, err := expandEnvVars(tc.Address)
	if err != nil {
		return nil, err
	}
	var headers map[string]string
	if len(tc.Headers) > 0 {
		headers = make(map[string]string, len(tc.Headers))
		for k, v := range tc.Headers {
			if headers[k], err = expandEnvVars(v); err != nil {
				return nil, err
			}
		}
	}
	return &domain.Target{
		ID:               domain.TargetID(tc.ID),
		Name:             tc.Name,
		Protocol:         domain.Protocol(tc.Protocol),
		Address:          address,
		IntervalSec:      int(iv / time.Second),
		Paused:           tc.Paused,
		Labels:           tc.Labels,
		Method:           tc.Method,
		ExpectedStatus:   tc.ExpectedStatus,
		Headers:          headers,
		Body:             tc.Body,
		CheckCertificate: tc.CheckCertificate,
		Port:             tc.Port,
		DNSServer:        tc.DNSServer,
		RecordType:       tc.RecordType,
		DNSExpected:      tc.DNSExpected,
		PacketCount:      tc.PacketCount,
		ProxyURL:         tc.Proxy,
	}, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars substitutes environment variables. A variable that is unset
// and has no default is an error.
func expandEnvVars(s string) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		if v, ok := os.LookupEnv(m[1]); ok {
			return v
		}
		if m[2] != "" {
			return m[3]
		}
		missing = append(missing, m[1])
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable not set: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
