package store

import "gorm.io/gorm"

// auditLogRow backs the api_audit_log table SPEC_FULL §9 requires: every
// mutating Control API call gets an immutable record of who did what.
type auditLogRow struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Actor      string `gorm:"column:actor;index"`
	Action     string `gorm:"column:action;index"`
	EntityType string `gorm:"column:entity_type"`
	EntityID   string `gorm:"column:entity_id;index"`
	Detail     string `gorm:"column:detail"`
	RemoteAddr string `gorm:"column:remote_addr"`
	At         int64  `gorm:"column:at;index"`
}

func (auditLogRow) TableName() string { return "api_audit_log" }

// AuditEntry is one mutating-API-call record.
type AuditEntry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Detail     string
	RemoteAddr string
	At         int64
}

// AuditLogStore persists the Control API's audit trail (SPEC_FULL §5, C10).
type AuditLogStore struct{ db *gorm.DB }

// Record appends one audit entry. Audit writes are append-only and never
// updated or deleted by application code.
func (s *AuditLogStore) Record(e AuditEntry) error {
	row := auditLogRow{Actor: e.Actor, Action: e.Action, EntityType: e.EntityType, EntityID: e.EntityID, Detail: e.Detail, RemoteAddr: e.RemoteAddr, At: e.At}
	return s.db.Create(&row).Error
}

// Recent returns the last `limit` audit entries, newest first, for the
// Control API's audit-log read endpoint.
func (s *AuditLogStore) Recent(limit int) ([]AuditEntry, error) {
	var rows []auditLogRow
	if err := s.db.Order("at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, AuditEntry{Actor: r.Actor, Action: r.Action, EntityType: r.EntityType, EntityID: r.EntityID, Detail: r.Detail, RemoteAddr: r.RemoteAddr, At: r.At})
	}
	return out, nil
}
