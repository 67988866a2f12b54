package store

import (
	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

// alertRow is the gorm row for domain.Alert; delivery attempts are kept as
// a JSON column since they're append-only and always read back whole.
type alertRow struct {
	ID         string                    `gorm:"column:id;primaryKey"`
	Type       string                    `gorm:"column:type;index"`
	Severity   string                    `gorm:"column:severity;index"`
	Title      string                    `gorm:"column:title"`
	Message    string                    `gorm:"column:message"`
	EntityType string                    `gorm:"column:entity_type"`
	EntityID   string                    `gorm:"column:entity_id;index"`
	Status     string                    `gorm:"column:status;index"`
	Deliveries []domain.DeliveryAttempt  `gorm:"column:deliveries;serializer:json"`
	CreatedAt  int64                     `gorm:"column:created_at;index"`
}

func (alertRow) TableName() string { return "alerts" }

func fromAlertRow(r alertRow) domain.Alert {
	return domain.Alert{
		ID:         r.ID,
		Type:       r.Type,
		Severity:   domain.Severity(r.Severity),
		Title:      r.Title,
		Message:    r.Message,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Status:     domain.AlertStatus(r.Status),
		Deliveries: r.Deliveries,
		CreatedAt:  millisToTime(r.CreatedAt),
	}
}

// suppressionRuleRow is a standing rule that mutes matching alerts, per
// SPEC_FULL §5's "suppression-rule matching" requirement on the alert bus.
type suppressionRuleRow struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Type       string `gorm:"column:type;index"`
	EntityType string `gorm:"column:entity_type"`
	EntityID   string `gorm:"column:entity_id;index"`
	ExpiresAt  int64  `gorm:"column:expires_at;index"`
	Reason     string `gorm:"column:reason"`
}

func (suppressionRuleRow) TableName() string { return "alert_suppressions" }

// AlertStore persists alerts, delivery history and suppression rules
// (SPEC_FULL §5, C9/C4).
type AlertStore struct{ db *gorm.DB }

// Create inserts a new alert.
func (s *AlertStore) Create(a domain.Alert) error {
	row := alertRow{
		ID: a.ID, Type: a.Type, Severity: string(a.Severity), Title: a.Title, Message: a.Message,
		EntityType: a.EntityType, EntityID: a.EntityID, Status: string(a.Status),
		Deliveries: a.Deliveries, CreatedAt: unixMillis(a.CreatedAt),
	}
	return s.db.Create(&row).Error
}

// AppendDelivery records one delivery attempt against an existing alert.
func (s *AlertStore) AppendDelivery(alertID string, attempt domain.DeliveryAttempt) error {
	var row alertRow
	if err := s.db.Where("id = ?", alertID).First(&row).Error; err != nil {
		return err
	}
	row.Deliveries = append(row.Deliveries, attempt)
	return s.db.Save(&row).Error
}

// Get returns the alert by ID, or ok=false if none exists.
func (s *AlertStore) Get(alertID string) (domain.Alert, bool) {
	var row alertRow
	if err := s.db.Where("id = ?", alertID).First(&row).Error; err != nil {
		return domain.Alert{}, false
	}
	return fromAlertRow(row), true
}

// UpdateStatus transitions an alert between active/acknowledged/resolved.
func (s *AlertStore) UpdateStatus(alertID string, status domain.AlertStatus) error {
	return s.db.Model(&alertRow{}).Where("id = ?", alertID).Update("status", string(status)).Error
}

// Active returns every alert still in the active status.
func (s *AlertStore) Active() ([]domain.Alert, error) {
	var rows []alertRow
	if err := s.db.Where("status = ?", string(domain.AlertActive)).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Alert, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromAlertRow(r))
	}
	return out, nil
}

// IsSuppressed reports whether an alert of (alertType, entityType, entityID)
// currently matches a live (non-expired) suppression rule.
func (s *AlertStore) IsSuppressed(alertType, entityType, entityID string, nowUnixMilli int64) (bool, error) {
	var count int64
	err := s.db.Model(&suppressionRuleRow{}).
		Where("type = ? AND entity_type = ? AND entity_id = ? AND expires_at > ?", alertType, entityType, entityID, nowUnixMilli).
		Count(&count).Error
	return count > 0, err
}

// Suppress installs a suppression rule for the given entity until expiresAt.
func (s *AlertStore) Suppress(alertType, entityType, entityID string, expiresAtUnixMilli int64, reason string) error {
	row := suppressionRuleRow{Type: alertType, EntityType: entityType, EntityID: entityID, ExpiresAt: expiresAtUnixMilli, Reason: reason}
	return s.db.Create(&row).Error
}
