package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/pkg/persistence"
	"github.com/betbot/autoexec/pkg/workerpool"
)

var evLog = logrus.WithField("component", "event_recorder")

// DefaultImportantEvents 默认关注的宏观事件
var DefaultImportantEvents = []string{
	"powell_speech",
	"unemployment_rate",
	"cpi",
	"ppi",
	"fomc_meeting",
	"gdp",
	"retail_sales",
	"nonfarm_payrolls",
}

const fileTimeLayout = "20060102_150405"

// Config 事件记录配置
type Config struct {
	Workers         int      `yaml:"max_workers"`
	ImportantEvents []string `yaml:"important_events"`
}

// Event 批量记录的输入
type Event struct {
	Name      string
	Timestamp time.Time
	Data      map[string]any
}

// BatchResult 批量记录结果
type BatchResult struct {
	Total    int      `json:"total"`
	Recorded int      `json:"recorded"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// Recorder 把事件写成 JSON 文件并同步到数据存储，按事件名维护文件索引
type Recorder struct {
	dir       *persistence.Dir
	store     ports.Persistence
	workers   int
	important map[string]struct{}

	mu    sync.RWMutex
	index map[string][]string // event -> 文件名（按时间排序）

	seq atomic.Uint64
	now func() time.Time
}

func NewRecorder(cfg Config, dir *persistence.Dir, store ports.Persistence) (*Recorder, error) {
	if dir == nil {
		return nil, fmt.Errorf("event data dir is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = workerpool.DefaultWorkers
	}
	if len(cfg.ImportantEvents) == 0 {
		cfg.ImportantEvents = DefaultImportantEvents
	}
	if store == nil {
		store = ports.NopPersistence{}
	}
	r := &Recorder{
		dir:       dir,
		store:     store,
		workers:   cfg.Workers,
		important: make(map[string]struct{}, len(cfg.ImportantEvents)),
		index:     make(map[string][]string),
		now:       time.Now,
	}
	for _, e := range cfg.ImportantEvents {
		r.important[e] = struct{}{}
	}
	if err := r.buildIndex(); err != nil {
		evLog.Errorf("构建事件索引失败: %v", err)
	}
	return r, nil
}

// IsImportant 是否在关注列表中
func (r *Recorder) IsImportant(name string) bool {
	_, ok := r.important[name]
	return ok
}

// 文件名: {event}_{YYYYmmdd_HHMMSS}_{mmm}_{seq}.json（UTC）；事件名本身可能含下划线
func eventFromFile(name string) (string, time.Time, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "_")
	if len(parts) < 5 {
		return "", time.Time{}, false
	}
	n := len(parts)
	ts, err := time.ParseInLocation(fileTimeLayout, parts[n-4]+"_"+parts[n-3], time.UTC)
	if err != nil {
		return "", time.Time{}, false
	}
	return strings.Join(parts[:n-4], "_"), ts, true
}

func (r *Recorder) buildIndex() error {
	names, err := r.dir.List("")
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		ev, _, ok := eventFromFile(name)
		if !ok {
			continue
		}
		r.index[ev] = append(r.index[ev], name)
	}
	return nil
}

// RecordEventData 记录单个事件；文件写入失败返回错误，数据存储失败只记日志
func (r *Recorder) RecordEventData(ctx context.Context, name string, ts time.Time, data map[string]any) (ports.EventRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ports.EventRecord{}, fmt.Errorf("event name is required")
	}
	if ts.IsZero() {
		ts = r.now()
	}
	if data == nil {
		data = map[string]any{}
	}
	important := r.IsImportant(name)
	if !important {
		evLog.Warnf("事件 %s 不在重要事件列表中", name)
	}
	rec := ports.EventRecord{
		EventID:   uuid.NewString(),
		EventName: name,
		Timestamp: ts,
		Data:      data,
		Important: important,
	}
	file := fmt.Sprintf("%s_%s_%03d_%06d.json", persistence.SafeName(name), ts.UTC().Format(fileTimeLayout),
		ts.Nanosecond()/int(time.Millisecond), r.seq.Add(1)%1000000)
	if err := r.dir.Write(file, rec); err != nil {
		return rec, fmt.Errorf("write event %s: %w", name, err)
	}

	r.mu.Lock()
	key := persistence.SafeName(name)
	r.index[key] = append(r.index[key], file)
	sort.Strings(r.index[key])
	r.mu.Unlock()

	if err := r.store.SaveEvent(ctx, rec); err != nil {
		metrics.PersistenceErrors.Add(1)
		evLog.Errorf("保存事件到数据存储失败: event=%s err=%v", name, err)
	}
	metrics.EventsRecorded.Add(1)
	evLog.Infof("已记录事件 %s @ %s", name, ts.Format(time.RFC3339))
	return rec, nil
}

// RecordEventsBatch 用 worker pool 并行记录；完成顺序不保证
func (r *Recorder) RecordEventsBatch(ctx context.Context, events []Event) BatchResult {
	res := BatchResult{Total: len(events), Errors: []string{}}
	out := workerpool.Map(ctx, r.workers, events, func(ctx context.Context, e Event) (ports.EventRecord, error) {
		return r.RecordEventData(ctx, e.Name, e.Timestamp, e.Data)
	})
	for _, o := range out {
		if o.Err != nil {
			res.Failed++
			res.Errors = append(res.Errors, o.Err.Error())
			continue
		}
		res.Recorded++
	}
	return res
}

// RecentEvents 最近 days 天的事件（name 为空表示全部），最新在前；limit <= 0 不限制
func (r *Recorder) RecentEvents(ctx context.Context, name string, days, limit int) []ports.EventRecord {
	cutoff := r.now().AddDate(0, 0, -days)
	var files []string
	r.mu.RLock()
	for ev, names := range r.index {
		if name != "" && ev != persistence.SafeName(name) {
			continue
		}
		for _, f := range names {
			if _, ts, ok := eventFromFile(f); ok && (days <= 0 || !ts.Before(cutoff)) {
				files = append(files, f)
			}
		}
	}
	r.mu.RUnlock()

	out := workerpool.Map(ctx, r.workers, files, func(_ context.Context, f string) (ports.EventRecord, error) {
		var rec ports.EventRecord
		err := r.dir.Read(f, &rec)
		return rec, err
	})
	recs := make([]ports.EventRecord, 0, len(out))
	for i, o := range out {
		if o.Err != nil {
			evLog.Errorf("读取事件文件 %s 失败: %v", files[i], o.Err)
			continue
		}
		recs = append(recs, o.Value)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// Impact 事件影响分析窗口
type Impact struct {
	EventName   string         `json:"event_name"`
	EventTime   time.Time      `json:"event_time"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Data        map[string]any `json:"event_data"`
}

// AnalyzeEventImpact 取该事件最新一条记录，给出前后 lookback 的分析窗口；没有记录返回 nil
func (r *Recorder) AnalyzeEventImpact(name string, lookback time.Duration) (*Impact, error) {
	r.mu.RLock()
	names := r.index[persistence.SafeName(name)]
	var latest string
	if len(names) > 0 {
		latest = names[len(names)-1]
	}
	r.mu.RUnlock()
	if latest == "" {
		return nil, nil
	}
	var rec ports.EventRecord
	if err := r.dir.Read(latest, &rec); err != nil {
		return nil, fmt.Errorf("read %s: %w", latest, err)
	}
	return &Impact{
		EventName:   rec.EventName,
		EventTime:   rec.Timestamp,
		WindowStart: rec.Timestamp.Add(-lookback),
		WindowEnd:   rec.Timestamp.Add(lookback),
		Data:        rec.Data,
	}, nil
}
