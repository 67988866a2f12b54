package store

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Store is the parent accessor: it owns the gorm connection and lazily
// constructs one typed sub-store per entity family, mirroring the teacher's
// store.Store lazy-getter shape.
type Store struct {
	db *gorm.DB

	mu          sync.Mutex
	collector   *CollectorStore
	strategy    *StrategyStore
	backtest    *BacktestStore
	order       *OrderStore
	position    *PositionStore
	goal        *GoalStore
	alert       *AlertStore
	audit       *AuditLogStore
	scheduler   *SchedulerStore
}

// New opens a SQLite-backed Store and runs migrations, for single-node
// deployments and tests.
func New(path string) (*Store, error) {
	db, err := InitGorm(path)
	if err != nil {
		return nil, err
	}
	return NewFromGorm(db)
}

// NewWithConfig opens a Store against the given DBConfig (sqlite or
// postgres) and runs migrations.
func NewWithConfig(cfg DBConfig) (*Store, error) {
	db, err := InitGormWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewFromGorm(db)
}

// NewFromGorm wraps an already-opened gorm.DB and runs migrations; no
// system_config rows are seeded.
func NewFromGorm(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initTables() error {
	if err := s.db.AutoMigrate(
		&collectorStateRow{},
		&healthRecordRow{},
		&strategyRow{},
		&backtestResultRow{},
		&orderRow{},
		&positionRow{},
		&financialGoalRow{},
		&goalProgressRow{},
		&alertRow{},
		&auditLogRow{},
		&scheduledJobRow{},
		&activationLogRow{},
		&systemConfigRow{},
	); err != nil {
		return fmt.Errorf("store: automigrate: %w", err)
	}
	return nil
}

// DB exposes the underlying gorm connection. (internal/timeseries does not
// use it: that store is in-memory.)
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside a single gorm transaction, rolling back on any
// returned error.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Collector() *CollectorStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		s.collector = &CollectorStore{db: s.db}
	}
	return s.collector
}

func (s *Store) Strategy() *StrategyStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strategy == nil {
		s.strategy = &StrategyStore{db: s.db}
	}
	return s.strategy
}

func (s *Store) Backtest() *BacktestStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backtest == nil {
		s.backtest = &BacktestStore{db: s.db}
	}
	return s.backtest
}

func (s *Store) Order() *OrderStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		s.order = &OrderStore{db: s.db}
	}
	return s.order
}

func (s *Store) Position() *PositionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == nil {
		s.position = &PositionStore{db: s.db}
	}
	return s.position
}

func (s *Store) Goal() *GoalStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goal == nil {
		s.goal = &GoalStore{db: s.db}
	}
	return s.goal
}

func (s *Store) Alert() *AlertStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil {
		s.alert = &AlertStore{db: s.db}
	}
	return s.alert
}

func (s *Store) Audit() *AuditLogStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = &AuditLogStore{db: s.db}
	}
	return s.audit
}

func (s *Store) Scheduler() *SchedulerStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		s.scheduler = &SchedulerStore{db: s.db}
	}
	return s.scheduler
}

// systemConfigRow is a generic key-value escape hatch for small bits of
// mutable runtime config that don't warrant their own table (teacher's
// store.go carries the same pattern for exchange-wide toggles).
type systemConfigRow struct {
	Key       string `gorm:"column:key;primaryKey"`
	Value     string `gorm:"column:value"`
	UpdatedAt int64  `gorm:"column:updated_at"`
}

func (systemConfigRow) TableName() string { return "system_config" }

// GetSystemConfig returns the value for key, or ("", false) if unset.
func (s *Store) GetSystemConfig(key string) (string, bool) {
	var row systemConfigRow
	if err := s.db.Where("key = ?", key).First(&row).Error; err != nil {
		return "", false
	}
	return row.Value, true
}

// SetSystemConfig upserts key=value.
func (s *Store) SetSystemConfig(key, value string, nowUnix int64) error {
	row := systemConfigRow{Key: key, Value: value, UpdatedAt: nowUnix}
	return s.db.Save(&row).Error
}
