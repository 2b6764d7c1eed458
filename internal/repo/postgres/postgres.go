package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	"github.com/hamed0406/pingwatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// targetParams is the protocol specific part of a target, kept as JSONB.
type targetParams struct {
	Method           string            `json:"method,omitempty"`
	ExpectedStatus   int               `json:"expected_status,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             string            `json:"body,omitempty"`
	CheckCertificate bool              `json:"check_certificate,omitempty"`
	Port             int               `json:"port,omitempty"`
	DNSServer        string            `json:"dns_server,omitempty"`
	RecordType       string            `json:"dns_record_type,omitempty"`
	DNSExpected      string            `json:"dns_expected,omitempty"`
	PacketCount      int               `json:"packet_count,omitempty"`
	ProxyURL         string            `json:"proxy_url,omitempty"`
}

func paramsOf(t *domain.Target) targetParams {
	return targetParams{
		Method: t.Method, ExpectedStatus: t.ExpectedStatus, Headers: t.Headers, Body: t.Body,
		CheckCertificate: t.CheckCertificate, Port: t.Port, DNSServer: t.DNSServer,
		RecordType: t.RecordType, DNSExpected: t.DNSExpected, PacketCount: t.PacketCount,
		ProxyURL: t.ProxyURL,
	}
}

func (p targetParams) applyTo(t *domain.Target) {
	t.Method, t.ExpectedStatus, t.Headers, t.Body = p.Method, p.ExpectedStatus, p.Headers, p.Body
	t.CheckCertificate, t.Port, t.DNSServer = p.CheckCertificate, p.Port, p.DNSServer
	t.RecordType, t.DNSExpected, t.PacketCount, t.ProxyURL = p.RecordType, p.DNSExpected, p.PacketCount, p.ProxyURL
}

// observationDetail is the protocol payload of an observation, kept as JSONB.
type observationDetail struct {
	Cert *domain.CertInfo `json:"certificate,omitempty"`
	Ping *domain.PingInfo `json:"ping,omitempty"`
	DNS  *domain.DNSInfo  `json:"dns,omitempty"`
}

// ---- TargetStore ----

const targetColumns = `id, name, protocol, address, interval_sec, paused, labels, params, created_at`

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	labels := t.Labels
	if labels == nil {
		labels = []string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, protocol = EXCLUDED.protocol, address = EXCLUDED.address,
  interval_sec = EXCLUDED.interval_sec, paused = EXCLUDED.paused,
  labels = EXCLUDED.labels, params = EXCLUDED.params`,
		string(t.ID), t.Name, string(t.Protocol), t.Address, t.IntervalSec, t.Paused,
		labels, paramsOf(t), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

const uniqueViolation = "23505"

func (s *Store) Create(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	labels := t.Labels
	if labels == nil {
		labels = []string{}
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(t.ID), t.Name, string(t.Protocol), t.Address, t.IntervalSec, t.Paused,
		labels, paramsOf(t), t.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("target %s: %w", t.ID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func scanTarget(row pgx.Row) (*domain.Target, error) {
	var (
		t        domain.Target
		id       string
		protocol string
		params   targetParams
	)
	if err := row.Scan(&id, &t.Name, &protocol, &t.Address, &t.IntervalSec, &t.Paused, &t.Labels, &params, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	t.Protocol = domain.Protocol(protocol)
	params.applyTo(&t)
	return &t, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+targetColumns+`
		   FROM targets
		  ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

// Delete removes the target; its observations and state cascade.
func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetPaused(ctx context.Context, id domain.TargetID, paused bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE targets SET paused = $2 WHERE id = $1`, string(id), paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- ObservationStore ----

// Append writes the observation and the state row in one transaction.
func (s *Store) Append(ctx context.Context, obs *domain.Observation, next domain.TargetState) error {
	detail := observationDetail{Cert: obs.Cert, Ping: obs.Ping, DNS: obs.DNS}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
INSERT INTO observations
  (id, target_id, status, latency_ms, status_code, error, reason, detail, checked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING seq`,
			obs.ID, string(obs.TargetID), string(obs.Status), obs.LatencyMS, obs.StatusCode,
			obs.Error, obs.Reason, detail, obs.CheckedAt,
		).Scan(&obs.Seq)
		if err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO target_states (target_id, status, last_checked_at, last_latency_ms, last_error)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (target_id) DO UPDATE SET
  status = EXCLUDED.status, last_checked_at = EXCLUDED.last_checked_at,
  last_latency_ms = EXCLUDED.last_latency_ms, last_error = EXCLUDED.last_error`,
			string(next.TargetID), string(next.Status), next.LastCheckedAt, next.LastLatencyMS, next.LastError,
		)
		if err != nil {
			return fmt.Errorf("upsert state: %w", err)
		}
		return nil
	})
}

func (s *Store) Query(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Observation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT seq, id, status, latency_ms, status_code, error, reason, detail, checked_at
  FROM observations
 WHERE target_id = $1 AND checked_at >= $2
 ORDER BY checked_at, seq`, string(id), since)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	out := []*domain.Observation{}
	for rows.Next() {
		var (
			o      = domain.Observation{TargetID: id}
			status string
			detail observationDetail
		)
		if err := rows.Scan(&o.Seq, &o.ID, &status, &o.LatencyMS, &o.StatusCode, &o.Error, &o.Reason, &detail, &o.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Status = domain.Status(status)
		o.Cert, o.Ping, o.DNS = detail.Cert, detail.Ping, detail.DNS
		o.CheckedAt = o.CheckedAt.UTC()
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *Store) Counts(ctx context.Context, id domain.TargetID, since time.Time) (int, int, error) {
	var up, total int
	err := s.pool.QueryRow(ctx, `
SELECT count(*) FILTER (WHERE status = 'up'), count(*)
  FROM observations
 WHERE target_id = $1 AND checked_at >= $2`, string(id), since).Scan(&up, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count observations: %w", err)
	}
	return up, total, nil
}

const stateColumns = `target_id, status, last_checked_at, last_latency_ms, last_error`

func scanState(row pgx.Row) (domain.TargetState, error) {
	var (
		st     domain.TargetState
		id     string
		status string
	)
	if err := row.Scan(&id, &status, &st.LastCheckedAt, &st.LastLatencyMS, &st.LastError); err != nil {
		return st, err
	}
	st.TargetID = domain.TargetID(id)
	st.Status = domain.Status(status)
	st.LastCheckedAt = st.LastCheckedAt.UTC()
	return st, nil
}

func (s *Store) State(ctx context.Context, id domain.TargetID) (domain.TargetState, bool, error) {
	st, err := scanState(s.pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM target_states WHERE target_id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UnknownState(id), false, nil
	}
	if err != nil {
		return domain.TargetState{}, false, fmt.Errorf("get state: %w", err)
	}
	return st, true, nil
}

func (s *Store) States(ctx context.Context) ([]domain.TargetState, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+stateColumns+` FROM target_states ORDER BY target_id`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()
	var out []domain.TargetState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- SettingsStore ----

const settingsID = "global"

func (s *Store) NotificationConfig(ctx context.Context) (domain.NotificationConfig, error) {
	var cfg domain.NotificationConfig
	err := s.pool.QueryRow(ctx,
		`SELECT telegram_bot_token, telegram_chat_id, enabled FROM settings WHERE id = $1`, settingsID,
	).Scan(&cfg.TelegramBotToken, &cfg.TelegramChatID, &cfg.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotificationConfig{}, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("get settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) SetNotificationConfig(ctx context.Context, cfg domain.NotificationConfig) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO settings (id, telegram_bot_token, telegram_chat_id, enabled)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
  telegram_bot_token = EXCLUDED.telegram_bot_token,
  telegram_chat_id = EXCLUDED.telegram_chat_id,
  enabled = EXCLUDED.enabled`,
		settingsID, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("set settings: %w", err)
	}
	return nil
}
