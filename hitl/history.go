package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// InteractionRecord 是终态结果在审计表中的一行。
type InteractionRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	RequestID  string    `gorm:"size:64;uniqueIndex" json:"request_id"`
	Kind       string    `gorm:"size:64;index" json:"type"`
	Prompt     string    `gorm:"type:text" json:"prompt"`
	Status     string    `gorm:"size:16;index" json:"status"`
	Value      string    `gorm:"type:text" json:"value"`
	WaitMillis int64     `json:"wait_ms"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `gorm:"index" json:"resolved_at"`
}

// TableName 指定审计表名。
func (InteractionRecord) TableName() string {
	return "interaction_records"
}

// GormHistory 基于 GORM 的终态审计记录器，支持 sqlite / postgres / mysql。
type GormHistory struct {
	db *gorm.DB
}

// NewGormHistory 创建审计记录器并确保表结构存在。
func NewGormHistory(db *gorm.DB) (*GormHistory, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.AutoMigrate(&InteractionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate interaction_records: %w", err)
	}
	return &GormHistory{db: db}, nil
}

// Record 写入一条终态结果。取值以 JSON 文本保存。
func (h *GormHistory) Record(ctx context.Context, outcome *Outcome) error {
	if outcome == nil {
		return nil
	}
	value, err := json.Marshal(outcome.Value)
	if err != nil {
		return fmt.Errorf("marshal outcome value: %w", err)
	}

	rec := &InteractionRecord{
		RequestID:  outcome.RequestID,
		Kind:       string(outcome.Kind),
		Prompt:     outcome.Prompt,
		Status:     string(outcome.Status),
		Value:      string(value),
		WaitMillis: outcome.WaitDuration().Milliseconds(),
		CreatedAt:  outcome.CreatedAt,
		ResolvedAt: outcome.ResolvedAt,
	}
	if err := h.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert interaction record: %w", err)
	}
	return nil
}

// Recent 返回最近的终态结果，按解决时间倒序。
func (h *GormHistory) Recent(ctx context.Context, limit int) ([]InteractionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var records []InteractionRecord
	err := h.db.WithContext(ctx).
		Order("resolved_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("query interaction records: %w", err)
	}
	return records, nil
}
