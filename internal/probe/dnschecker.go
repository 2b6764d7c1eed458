package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

// Lookuper is the subset of *net.Resolver the DNS checker needs.
type Lookuper interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

const systemResolver = "system"

type DNSChecker struct {
	// Resolver returns a resolver bound to server; "" means the OS resolver.
	Resolver func(server string) Lookuper
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{Resolver: newResolver}
}

func newResolver(server string) Lookuper {
	if server == "" {
		return net.DefaultResolver
	}
	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

func (d *DNSChecker) Check(ctx context.Context, t *domain.Target) CheckResult {
	name := strings.TrimSpace(domain.Host(t.Address))
	server := t.DNSServer
	info := &domain.DNSInfo{Server: server}
	if server == "" {
		info.Server = systemResolver
	}
	if name == "" {
		out := failed(domain.ReasonDNSError, "INVALID_NAME", 0)
		out.DNS = info
		return out
	}

	recordType := t.RecordType
	if recordType == "" {
		recordType = domain.DefaultRecordType
	}

	start := time.Now()
	records, err := lookup(ctx, d.Resolver(server), recordType, name)
	latency := msSince(start)
	info.Records = records

	var out CheckResult
	switch {
	case err != nil && isNotFound(err):
		out = failed(domain.ReasonNoRecords, fmt.Sprintf("no %s records found for %s (NXDOMAIN)", recordType, name), latency)
	case err != nil:
		out = failed(domain.ReasonDNSError, fmt.Sprintf("%s lookup for %s failed (%s): %v", recordType, name, classify(err), err), latency)
	case len(records) == 0:
		out = failed(domain.ReasonNoRecords, fmt.Sprintf("no %s records found for %s", recordType, name), latency)
	case t.DNSExpected != "" && !containsRecord(records, t.DNSExpected):
		out = failed(domain.ReasonRecordMismatch,
			fmt.Sprintf("expected record %q not found in %s records %v", t.DNSExpected, recordType, records), latency)
	default:
		out = CheckResult{Success: true, LatencyMS: latency, Message: "RESOLVES"}
	}
	out.DNS = info
	return out
}

func lookup(ctx context.Context, r Lookuper, recordType, name string) ([]string, error) {
	var out []string
	switch recordType {
	case "A", "AAAA":
		network := "ip4"
		if recordType == "AAAA" {
			network = "ip6"
		}
		ips, err := r.LookupIP(ctx, network, name)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			out = append(out, ip.String())
		}
	case "CNAME":
		cname, err := r.LookupCNAME(ctx, name)
		if err != nil {
			return nil, err
		}
		cname = strings.TrimSuffix(cname, ".")
		if cname != "" && !strings.EqualFold(cname, strings.TrimSuffix(name, ".")) {
			out = append(out, cname)
		}
	case "MX":
		mxs, err := r.LookupMX(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, mx := range mxs {
			out = append(out, strings.TrimSuffix(mx.Host, "."))
		}
	case "TXT":
		txt, err := r.LookupTXT(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, txt...)
	case "NS":
		ns, err := r.LookupNS(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, n := range ns {
			out = append(out, strings.TrimSuffix(n.Host, "."))
		}
	default:
		return nil, fmt.Errorf("unsupported record type %q", recordType)
	}
	return out, nil
}

func containsRecord(records []string, want string) bool {
	want = strings.TrimSuffix(strings.TrimSpace(want), ".")
	wantIP := net.ParseIP(want)
	for _, r := range records {
		if wantIP != nil {
			if ip := net.ParseIP(r); ip != nil && ip.Equal(wantIP) {
				return true
			}
			continue
		}
		if strings.EqualFold(strings.TrimSuffix(r, "."), want) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var de *net.DNSError
	return errors.As(err, &de) && de.IsNotFound
}

// classify maps resolver errors to the coarse classes operators recognise.
func classify(err error) string {
	var de *net.DNSError
	if errors.As(err, &de) {
		switch {
		case de.IsNotFound:
			return "NXDOMAIN"
		case de.IsTimeout, de.IsTemporary:
			return "SERVFAIL_or_TIMEOUT"
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "SERVFAIL_or_TIMEOUT"
	}
	return "RESOLVER_ERROR"
}
