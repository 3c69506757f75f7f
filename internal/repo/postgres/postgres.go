package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- MonitorRegistry ----

const monitorColumns = `
SELECT m.id, m.user_id, m.name, m.url, m.interval_s, m.timeout_s, m.is_active,
       m.status, m.last_check, m.created_at, m.updated_at,
       w.id, w.url, w.message
  FROM monitors m
  LEFT JOIN webhooks w ON w.monitor_id = m.id`

func (s *Store) ListActive(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, monitorColumns+`
 WHERE m.is_active
 ORDER BY m.created_at, m.id`)
	if err != nil {
		return nil, fmt.Errorf("list active monitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx, monitorColumns+` WHERE m.id = $1`, string(id))
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return m, nil
}

func (s *Store) Create(ctx context.Context, m *domain.Monitor) error {
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO monitors
			   (id, user_id, name, url, interval_s, timeout_s, is_active, status, last_check, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			string(m.ID), string(m.UserID), m.Name, m.URL, m.Interval, m.Timeout, m.Active,
			string(m.Status), m.LastCheck, m.CreatedAt, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert monitor: %w", err)
		}
		return upsertWebhook(ctx, tx, m)
	})
}

func (s *Store) Update(ctx context.Context, m *domain.Monitor) error {
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE monitors
			    SET user_id=$2, name=$3, url=$4, interval_s=$5, timeout_s=$6, is_active=$7, updated_at=$8
			  WHERE id=$1`,
			string(m.ID), string(m.UserID), m.Name, m.URL, m.Interval, m.Timeout, m.Active, m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update monitor: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("monitor %s: %w", m.ID, repo.ErrNotFound)
		}
		if m.Webhook == nil {
			if _, err := tx.Exec(ctx, `DELETE FROM webhooks WHERE monitor_id=$1`, string(m.ID)); err != nil {
				return fmt.Errorf("detach webhook: %w", err)
			}
			return nil
		}
		return upsertWebhook(ctx, tx, m)
	})
}

func (s *Store) Delete(ctx context.Context, id domain.MonitorID) error {
	// events, notifications and webhooks go with it (ON DELETE CASCADE)
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitors WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	return nil
}

// ---- StatusStore ----

func (s *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.Status, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET status=$2, last_check=$3 WHERE id=$1`,
		string(id), string(status), checkedAt)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	return nil
}

// ---- EventStore ----

func (s *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = domain.EventID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, monitor_id, status, created_at) VALUES ($1, $2, $3, $4)`,
		string(e.ID), string(e.MonitorID), string(e.Status), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) LatestEvent(ctx context.Context, id domain.MonitorID) (*domain.Event, error) {
	evs, err := s.ListEvents(ctx, id, 1)
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, nil
	}
	return &evs[0], nil
}

func (s *Store) ListEvents(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, monitor_id, status, created_at
		   FROM events
		  WHERE monitor_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`, string(id), repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			eid, mid, status string
			createdAt        time.Time
		)
		if err := rows.Scan(&eid, &mid, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, domain.Event{
			ID:        domain.EventID(eid),
			MonitorID: domain.MonitorID(mid),
			Status:    domain.Status(status),
			CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}

// ---- NotificationStore ----

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = domain.NotificationID(uuid.NewString())
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, monitor_id, message, status, sent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(n.ID), string(n.UserID), string(n.MonitorID), n.Message, string(n.Status), n.Sent, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, monitor_id, message, status, sent, created_at
		   FROM notifications
		  WHERE user_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`, string(user), repo.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			id, uid, mid, msg, status string
			sent                      bool
			createdAt                 time.Time
		)
		if err := rows.Scan(&id, &uid, &mid, &msg, &status, &sent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, domain.Notification{
			ID:        domain.NotificationID(id),
			UserID:    domain.UserID(uid),
			MonitorID: domain.MonitorID(mid),
			Message:   msg,
			Status:    domain.Status(status),
			Sent:      sent,
			CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, user domain.UserID, ids []domain.NotificationID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET sent = TRUE
		  WHERE user_id = $1 AND id = ANY($2) AND NOT sent`,
		string(user), raw)
	if err != nil {
		return 0, fmt.Errorf("mark sent: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- helpers ----

func upsertWebhook(ctx context.Context, tx pgx.Tx, m *domain.Monitor) error {
	if m.Webhook == nil {
		return nil
	}
	if m.Webhook.ID == "" {
		m.Webhook.ID = uuid.NewString()
	}
	m.Webhook.MonitorID = m.ID
	msg, err := json.Marshal(m.Webhook.Message)
	if err != nil {
		return fmt.Errorf("encode webhook message: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO webhooks (id, monitor_id, url, message)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (monitor_id)
		 DO UPDATE SET url=EXCLUDED.url, message=EXCLUDED.message`,
		m.Webhook.ID, string(m.ID), m.Webhook.URL, msg)
	if err != nil {
		return fmt.Errorf("upsert webhook: %w", err)
	}
	return nil
}

func scanMonitor(row pgx.Row) (*domain.Monitor, error) {
	var (
		m                  domain.Monitor
		id, userID, status string
		whID, whURL        *string
		whMessage          []byte
	)
	err := row.Scan(&id, &userID, &m.Name, &m.URL, &m.Interval, &m.Timeout, &m.Active,
		&status, &m.LastCheck, &m.CreatedAt, &m.UpdatedAt,
		&whID, &whURL, &whMessage)
	if err != nil {
		return nil, err
	}
	m.ID = domain.MonitorID(id)
	m.UserID = domain.UserID(userID)
	m.Status = domain.Status(status)
	if whID != nil {
		wh := &domain.Webhook{ID: *whID, MonitorID: m.ID}
		if whURL != nil {
			wh.URL = *whURL
		}
		if len(whMessage) > 0 {
			if err := json.Unmarshal(whMessage, &wh.Message); err != nil {
				return nil, fmt.Errorf("decode webhook message: %w", err)
			}
		}
		m.Webhook = wh
	}
	return &m, nil
}
