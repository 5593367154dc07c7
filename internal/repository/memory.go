package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gasguard/internal/models"

	"github.com/google/uuid"
)

// MemoryStore 内存实现：用于单元测试与 DB_ENABLED=false 的本地联调
// - 同时实现四个仓库接口
// - 时间取自 now（测试可替换）
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextReadingID int64
	readings      []models.Reading // 按插入顺序
	users         map[string]models.User
	devices       map[string]models.Device
	preferences   map[string]models.NotificationPreference
	audits        []models.NotificationAudit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         time.Now,
		users:       map[string]models.User{},
		devices:     map[string]models.Device{},
		preferences: map[string]models.NotificationPreference{},
	}
}

var (
	_ ReadingsRepository          = (*MemoryStore)(nil)
	_ DevicesRepository           = (*MemoryStore)(nil)
	_ PreferencesRepository       = (*MemoryStore)(nil)
	_ NotificationAuditRepository = (*MemoryStore)(nil)
)

// SetClock 替换时间源
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// ---- seed helpers（设备认领与用户管理不在本服务范围内） ----

func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) PutDevice(d models.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	d.Owner = nil
	m.devices[d.ID] = d
}

// ---- readings ----

func (m *MemoryStore) InsertReading(_ context.Context, r *models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReadingID++
	r.ID = m.nextReadingID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.readings = append(m.readings, *r)
	return nil
}

func (m *MemoryStore) ListRecentReadings(ctx context.Context, deviceID, sensorType string, limit int) ([]models.Reading, error) {
	return m.ListReadings(ctx, ReadingFilters{DeviceID: deviceID, SensorType: sensorType, Limit: limit})
}

func (m *MemoryStore) ListReadings(_ context.Context, filters ReadingFilters) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(filters.Limit)
	var out []models.Reading
	for i := len(m.readings) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.readings[i]
		if filters.DeviceID != "" && r.DeviceID != filters.DeviceID {
			continue
		}
		if filters.SensorType != "" && r.SensorType != filters.SensorType {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) CountReadings(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings), nil
}

func (m *MemoryStore) ListOldestReadingIDs(_ context.Context, limit int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for i := 0; i < len(m.readings) && len(ids) < limit; i++ {
		ids = append(ids, m.readings[i].ID)
	}
	return ids, nil
}

func (m *MemoryStore) DeleteReadingsByIDs(_ context.Context, ids []int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.readings[:0]
	var deleted int64
	for _, r := range m.readings {
		if _, ok := drop[r.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.readings = kept
	return deleted, nil
}

// ---- devices ----

func (m *MemoryStore) withOwner(d models.Device) models.Device {
	if d.ClaimedBy != nil {
		if u, ok := m.users[*d.ClaimedBy]; ok {
			owner := u
			d.Owner = &owner
		}
	}
	return d
}

func (m *MemoryStore) GetDevice(_ context.Context, deviceID string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	d = m.withOwner(d)
	return &d, nil
}

func (m *MemoryStore) TouchDevice(ctx context.Context, deviceID, ipAddress string, at time.Time) (*models.Device, error) {
	m.mu.Lock()
	d, ok := m.devices[deviceID]
	if !ok {
		d = models.Device{ID: deviceID, Name: deviceID, CreatedAt: at}
	}
	d.IPAddress = ipAddress
	d.IsActive = true
	seen := at
	d.LastSeen = &seen
	m.devices[deviceID] = d
	m.mu.Unlock()

	return m.GetDevice(ctx, deviceID)
}

func (m *MemoryStore) ListDevicesSeenSince(_ context.Context, since time.Time) ([]models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Device
	for _, d := range m.devices {
		if d.LastSeen != nil && !d.LastSeen.Before(since) {
			out = append(out, m.withOwner(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(*out[j].LastSeen) })
	return out, nil
}

// ---- preferences ----

func (m *MemoryStore) GetPreference(_ context.Context, userID string) (*models.NotificationPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.preferences[userID]
	if !ok {
		return nil, fmt.Errorf("notification settings for %s: %w", userID, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) UpsertPreference(_ context.Context, p *models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = m.now()
	m.preferences[p.UserID] = *p
	return nil
}

// ---- notification audit ----

func (m *MemoryStore) InsertAudit(_ context.Context, a *models.NotificationAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now()
	}
	m.audits = append(m.audits, *a)
	return nil
}

func matchesKey(a models.NotificationAudit, key AuditKey) bool {
	return a.Outcome == models.OutcomeSent &&
		a.Recipient == key.Recipient &&
		a.DeviceID == key.DeviceID &&
		(key.SensorType == "" || a.SensorType == key.SensorType)
}

func (m *MemoryStore) LastSentAt(_ context.Context, key AuditKey) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *time.Time
	for i := range m.audits {
		a := m.audits[i]
		if matchesKey(a, key) && (last == nil || a.CreatedAt.After(*last)) {
			t := a.CreatedAt
			last = &t
		}
	}
	return last, nil
}

func (m *MemoryStore) CountSentSince(_ context.Context, key AuditKey, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.audits {
		if matchesKey(a, key) && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListAudits(_ context.Context, filters AuditFilters) ([]models.NotificationAudit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeLimit(filters.Limit)
	var out []models.NotificationAudit
	for i := len(m.audits) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.audits[i]
		if filters.Recipient != "" && a.Recipient != filters.Recipient {
			continue
		}
		if filters.DeviceID != "" && a.DeviceID != filters.DeviceID {
			continue
		}
		if filters.Outcome != "" && a.Outcome != filters.Outcome {
			continue
		}
		if filters.Since != nil && a.CreatedAt.Before(*filters.Since) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *MemoryStore) AuditStats(_ context.Context, recipient string, dayStart time.Time) (models.NotificationStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s models.NotificationStats
	for _, a := range m.audits {
		if a.Recipient != recipient {
			continue
		}
		s.Total++
		switch a.Outcome {
		case models.OutcomeSent:
			s.Sent++
		case models.OutcomeFailed:
			s.Failed++
		case models.OutcomeBlocked:
			s.Blocked++
		}
		if !a.CreatedAt.Before(dayStart) {
			s.Today++
		}
	}
	return s, nil
}
