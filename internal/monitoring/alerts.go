package monitoring

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/pkg/persistence"
)

var alertLog = logrus.WithField("component", "monitoring")

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

type Type string

const (
	TypeSystem   Type = "system"
	TypeNetwork  Type = "network"
	TypeDatabase Type = "database"
	TypeOrder    Type = "order"
	TypeRisk     Type = "risk"
	TypeAPI      Type = "api"
	TypeOther    Type = "other"
)

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"

	defaultMaxAlerts = 1000
)

// Alert 告警
type Alert struct {
	ID         string         `json:"alert_id"`
	Level      Level          `json:"level"`
	Type       Type           `json:"type"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     string         `json:"status"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
}

// Summary 告警概要
type Summary struct {
	Total     int           `json:"total_alerts"`
	Open      int           `json:"open_alerts"`
	OpenByLvl map[Level]int `json:"open_alert_details"`
}

// Manager 告警管理：内存保留最近的告警，变化后整体写回 JSON 文件
type Manager struct {
	mu     sync.Mutex
	alerts []*Alert
	max    int
	store  persistence.Store
	now    func() time.Time
}

// NewManager store 可为 nil（只在内存中保留）
func NewManager(store persistence.Store) *Manager {
	m := &Manager{max: defaultMaxAlerts, store: store, now: time.Now}
	if store != nil {
		var saved []*Alert
		switch err := store.Load(&saved); {
		case err == nil:
			m.alerts = saved
			m.trimLocked()
		case !errors.Is(err, persistence.ErrNotExists):
			alertLog.Errorf("加载告警失败: %v", err)
		}
	}
	return m
}

// Raise 创建告警
func (m *Manager) Raise(level Level, typ Type, message string, details map[string]any) Alert {
	if m == nil {
		return Alert{}
	}
	a := &Alert{
		ID:        "alert_" + uuid.NewString(),
		Level:     level,
		Type:      typ,
		Message:   message,
		Details:   details,
		Timestamp: m.now(),
		Status:    StatusOpen,
	}
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	m.trimLocked()
	cp := *a
	m.saveLocked()
	m.mu.Unlock()

	metrics.AlertsRaised.Add(1)
	entry := alertLog.WithFields(logrus.Fields{"level": level, "type": typ})
	switch level {
	case LevelCritical, LevelError:
		entry.Error(message)
	case LevelWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return cp
}

// Resolve 关闭告警；不存在或已关闭返回 false
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id && a.Status == StatusOpen {
			t := m.now()
			a.Status = StatusResolved
			a.ResolvedAt = &t
			m.saveLocked()
			return true
		}
	}
	return false
}

// ResolveAll 关闭所有（或指定级别）未解决告警，返回数量
func (m *Manager) ResolveAll(level Level) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	t := m.now()
	for _, a := range m.alerts {
		if a.Status != StatusOpen || (level != "" && a.Level != level) {
			continue
		}
		a.Status = StatusResolved
		a.ResolvedAt = &t
		n++
	}
	if n > 0 {
		m.saveLocked()
	}
	return n
}

// Open 未解决告警（可按级别过滤），最新在前
func (m *Manager) Open(level Level) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.alerts {
		if a.Status == StatusOpen && (level == "" || a.Level == level) {
			out = append(out, *a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Between 时间范围内的告警
func (m *Manager) Between(start, end time.Time) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.alerts {
		if !a.Timestamp.Before(start) && !a.Timestamp.After(end) {
			out = append(out, *a)
		}
	}
	return out
}

// Counts 告警概要
func (m *Manager) Counts() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{Total: len(m.alerts), OpenByLvl: map[Level]int{
		LevelInfo: 0, LevelWarning: 0, LevelError: 0, LevelCritical: 0,
	}}
	for _, a := range m.alerts {
		if a.Status == StatusOpen {
			s.Open++
			s.OpenByLvl[a.Level]++
		}
	}
	return s
}

func (m *Manager) trimLocked() {
	if len(m.alerts) > m.max {
		m.alerts = append(m.alerts[:0:0], m.alerts[len(m.alerts)-m.max:]...)
	}
}

func (m *Manager) saveLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.alerts); err != nil {
		metrics.PersistenceErrors.Add(1)
		alertLog.Errorf("保存告警失败: %v", err)
	}
}
