package probe

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const maxDrainBytes = 1 << 20

type HTTPChecker struct {
	Timeout time.Duration
	// RootCAs overrides the system pool for certificate verification.
	RootCAs *x509.CertPool

	mu      sync.Mutex
	clients map[string]*http.Client // keyed by proxy URL
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{Timeout: timeout, clients: make(map[string]*http.Client)}
}

func (h *HTTPChecker) client(proxyURL string) (*http.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients == nil {
		h.clients = make(map[string]*http.Client)
	}
	if c, ok := h.clients[proxyURL]; ok {
		return c, nil
	}
	tr, err := newTransport(proxyURL, h.RootCAs)
	if err != nil {
		return nil, err
	}
	c := &http.Client{Timeout: h.Timeout, Transport: tr}
	h.clients[proxyURL] = c
	return c, nil
}

func (h *HTTPChecker) Check(ctx context.Context, t *domain.Target) CheckResult {
	start := time.Now()
	client, err := h.client(t.ProxyURL)
	if err != nil {
		return failed(domain.ReasonHTTPError, err.Error(), 0)
	}

	var body io.Reader
	if t.Body != "" && (t.Method == http.MethodPost || t.Method == http.MethodPut || t.Method == http.MethodPatch) {
		body = strings.NewReader(t.Body)
	}
	method := t.Method
	if method == "" {
		method = domain.DefaultMethod
	}
	req, err := http.NewRequestWithContext(ctx, method, t.Address, body)
	if err != nil {
		return failed(domain.ReasonHTTPError, err.Error(), 0)
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	latency := msSince(start)
	if err != nil {
		return failed(domain.ReasonHTTPError, err.Error(), latency)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	expected := t.ExpectedStatus
	if expected == 0 {
		expected = domain.DefaultExpectedStatus
	}
	out := CheckResult{
		Success:    resp.StatusCode == expected,
		LatencyMS:  latency,
		Message:    resp.Status,
		StatusCode: resp.StatusCode,
	}
	if !out.Success {
		out.Reason = domain.ReasonStatusMismatch
		out.Message = fmt.Sprintf("%s (expected %d)", resp.Status, expected)
	}
	if t.CheckCertificate && resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		out.Cert = certInfo(resp.TLS.PeerCertificates[0], time.Now())
	}
	return out
}

// certInfo is informational only; an expiring certificate never fails a check.
func certInfo(leaf *x509.Certificate, now time.Time) *domain.CertInfo {
	issuer := leaf.Issuer.CommonName
	if issuer == "" {
		issuer = leaf.Issuer.String()
	}
	subject := leaf.Subject.CommonName
	if subject == "" && len(leaf.DNSNames) > 0 {
		subject = leaf.DNSNames[0]
	}
	if subject == "" {
		subject = leaf.Subject.String()
	}
	return &domain.CertInfo{
		Issuer:        issuer,
		Subject:       subject,
		ValidFrom:     leaf.NotBefore.UTC(),
		ValidTo:       leaf.NotAfter.UTC(),
		DaysRemaining: int(math.Floor(leaf.NotAfter.Sub(now).Hours() / 24)),
	}
}
