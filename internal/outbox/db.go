package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amoylab/inboxhub/internal/common/cnst"
	"github.com/amoylab/inboxhub/internal/common/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// entryModel is the row layout of outbox_entries. Seq gives the FIFO order.
type entryModel struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	EntryID    string    `gorm:"column:entry_id;size:64;uniqueIndex"`
	URL        string    `gorm:"column:url;type:text"`
	Method     string    `gorm:"column:method;size:16"`
	Headers    string    `gorm:"column:headers;type:text"`
	Body       string    `gorm:"column:body;type:text"`
	EnqueuedAt time.Time `gorm:"column:enqueued_at"`
}

func (entryModel) TableName() string { return "outbox_entries" }

func fromEntry(e *Entry) (*entryModel, error) {
	headers := ""
	if len(e.Headers) > 0 {
		data, err := json.Marshal(e.Headers)
		if err != nil {
			return nil, err
		}
		headers = string(data)
	}
	return &entryModel{
		EntryID:    e.ID,
		URL:        e.URL,
		Method:     e.Method,
		Headers:    headers,
		Body:       e.Body,
		EnqueuedAt: e.EnqueuedAt,
	}, nil
}

func (m *entryModel) toEntry() (*Entry, error) {
	e := &Entry{
		ID:         m.EntryID,
		URL:        m.URL,
		Method:     m.Method,
		Body:       m.Body,
		EnqueuedAt: m.EnqueuedAt.UTC(),
	}
	if m.Headers != "" {
		if err := json.Unmarshal([]byte(m.Headers), &e.Headers); err != nil {
			return nil, fmt.Errorf("entry %s: headers: %w", m.EntryID, err)
		}
	}
	return e, nil
}

// DBStore keeps the queue in a SQL table
type DBStore struct {
	logger *zap.Logger
	db     *gorm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore opens the configured database and migrates the table
func NewDBStore(logger *zap.Logger, cfg *config.DatabaseConfig) (*DBStore, error) {
	logger = logger.Named("outbox.store.db")

	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	case "mysql":
		dialector = mysql.Open(cfg.GetDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("%w: database %q", cnst.ErrUnsupportedStorage, cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, err
	}

	return &DBStore{logger: logger, db: db}, nil
}

// Load implements Store.Load
func (s *DBStore) Load(ctx context.Context) ([]*Entry, error) {
	var models []entryModel
	if err := s.db.WithContext(ctx).Order("seq asc").Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]*Entry, 0, len(models))
	for i := range models {
		e, err := models[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Append implements Store.Append
func (s *DBStore) Append(ctx context.Context, e *Entry) error {
	model, err := fromEntry(e)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(model).Error
}

// Remove implements Store.Remove
func (s *DBStore) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("entry_id IN ?", ids).Delete(&entryModel{}).Error
}

// Close implements Store.Close
func (s *DBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
