// Package seed registers monitors listed in a YAML file at start-up.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

// namespace makes seeded monitor ids stable across restarts.
var namespace = uuid.MustParse("6f1c4f3e-9a55-4d0e-8f0a-2b8f3e5d7c11")

type File struct {
	Monitors []Monitor `yaml:"monitors"`
}

type Monitor struct {
	Name     string   `yaml:"name"`
	UserID   string   `yaml:"user_id"`
	URL      string   `yaml:"url"`
	Interval int      `yaml:"interval"` // seconds
	Timeout  int      `yaml:"timeout"`  // seconds
	Active   *bool    `yaml:"active,omitempty"`
	Webhook  *Webhook `yaml:"webhook,omitempty"`
}

// Webhook payloads are written as YAML and sent as JSON.
type Webhook struct {
	URL     string `yaml:"url"`
	Up      any    `yaml:"up,omitempty"`
	Down    any    `yaml:"down,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Load reads path, applies defaults and validates every monitor.
func Load(path string) ([]domain.Monitor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) ([]domain.Monitor, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(f.Monitors) == 0 {
		return nil, errors.New("seed: no monitors provided")
	}

	seen := make(map[string]struct{}, len(f.Monitors))
	out := make([]domain.Monitor, 0, len(f.Monitors))
	for i, sm := range f.Monitors {
		m, err := sm.toDomain()
		if err != nil {
			return nil, fmt.Errorf("seed: monitor[%d]: %w", i, err)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("seed: duplicate monitor name %q", m.Name)
		}
		seen[m.Name] = struct{}{}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("seed: monitor %q: %w", m.Name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (sm Monitor) toDomain() (domain.Monitor, error) {
	name := strings.TrimSpace(sm.Name)
	m := domain.Monitor{
		ID:       MonitorID(name),
		UserID:   domain.UserID(strings.TrimSpace(sm.UserID)),
		Name:     name,
		URL:      strings.TrimSpace(sm.URL),
		Interval: sm.Interval,
		Timeout:  sm.Timeout,
		Active:   sm.Active == nil || *sm.Active,
	}
	m.ApplyDefaults()

	if sm.Webhook != nil {
		up, err := toJSON(sm.Webhook.Up)
		if err != nil {
			return m, fmt.Errorf("webhook up: %w", err)
		}
		down, err := toJSON(sm.Webhook.Down)
		if err != nil {
			return m, fmt.Errorf("webhook down: %w", err)
		}
		m.Webhook = &domain.Webhook{
			URL: strings.TrimSpace(sm.Webhook.URL),
			Message: domain.WebhookMessage{
				Up:      up,
				Down:    down,
				Message: sm.Webhook.Message,
			},
		}
	}
	return m, nil
}

// MonitorID derives the id a seeded monitor is stored under.
func MonitorID(name string) domain.MonitorID {
	return domain.MonitorID(uuid.NewSHA1(namespace, []byte(name)).String())
}

func toJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(normalize(v))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// normalize turns map[any]any, which encoding/json rejects, into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Apply creates every monitor that the registry does not know yet and
// returns how many were created. Existing monitors are left untouched.
func Apply(ctx context.Context, reg repo.MonitorRegistry, monitors []domain.Monitor, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	created := 0
	for i := range monitors {
		m := monitors[i]
		_, err := reg.Get(ctx, m.ID)
		switch {
		case err == nil:
			log.Debug("seed_exists", zap.String("monitor_id", string(m.ID)), zap.String("name", m.Name))
			continue
		case !errors.Is(err, repo.ErrNotFound):
			return created, fmt.Errorf("seed: lookup %q: %w", m.Name, err)
		}
		if err := reg.Create(ctx, &m); err != nil {
			return created, fmt.Errorf("seed: create %q: %w", m.Name, err)
		}
		created++
		log.Info("seed_created",
			zap.String("monitor_id", string(m.ID)),
			zap.String("name", m.Name),
			zap.String("url", m.URL),
		)
	}
	return created, nil
}
