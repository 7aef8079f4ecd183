package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

// Record is the table row written by GormSink.
type Record struct {
	ID           uint      `gorm:"primaryKey"`
	Timestamp    time.Time `gorm:"index;not null"`
	EventType    string    `gorm:"size:64;index;not null"`
	RequestID    string    `gorm:"size:64;index"`
	ClauseID     string    `gorm:"size:128;index"`
	Jurisdiction string    `gorm:"size:64"`
	Payload      string    `gorm:"type:text;not null"`
}

func (Record) TableName() string { return "grounding_audit_events" }

// GormSink stores events in a SQL table.
type GormSink struct {
	db *gorm.DB
}

// OpenGormSink connects with driver "sqlite" or "postgres" and migrates
// the audit table.
func OpenGormSink(driver, dsn string) (*GormSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("audit dsn is required for driver %s", driver)
	}
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown audit driver: %s", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return NewGormSink(db)
}

func NewGormSink(db *gorm.DB) (*GormSink, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &GormSink{db: db}, nil
}

func (s *GormSink) Record(ctx context.Context, e Event) error {
	if err := validType(e.Type); err != nil {
		return err
	}
	payload, err := payloadJSON(e)
	if err != nil {
		return err
	}
	rec := Record{Timestamp: e.Timestamp, EventType: e.Type, Payload: string(payload)}
	switch p := e.Payload.(type) {
	case *schema.EvidencePack:
		rec.RequestID, rec.ClauseID, rec.Jurisdiction = p.RequestID, p.ClauseID, p.Jurisdiction
	case FailureEvent:
		rec.RequestID, rec.ClauseID, rec.Jurisdiction = p.RequestID, p.ClauseID, p.Jurisdiction
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Events returns stored events of one type, oldest first.
func (s *GormSink) Events(ctx context.Context, eventType string, limit int) ([]Record, error) {
	var out []Record
	q := s.db.WithContext(ctx).Where("event_type = ?", eventType).Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
