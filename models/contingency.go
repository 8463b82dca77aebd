package models

import (
	"context"
	"time"

	"bitbucket.org/almapacdev/shipments_backend/config"
	"bitbucket.org/almapacdev/shipments_backend/utils"
	"gorm.io/gorm"
)

// ContingencyTransaction is a deferred receipt push. Created when the
// receipt system is unreachable; the sweeper retries until resolved.
type ContingencyTransaction struct {
	ID         int        `gorm:"primary_key" json:"id"`
	CodeGen    string     `gorm:"column:code_gen;size:50;index;not null" json:"code_gen"`
	StatusId   int        `gorm:"column:status_id;not null" json:"status_id"`
	Detail     string     `gorm:"column:detail;size:500" json:"detail"`
	RetryCount int        `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	IsResolved *bool      `gorm:"column:is_resolved;not null;default:false" json:"is_resolved"`
	LastTry    *time.Time `gorm:"column:last_try" json:"last_try"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreateContingency captures a failed receipt push for later retry.
// Detail is truncated to the persisted cap.
func CreateContingency(ctx context.Context, codeGen string, statusId int, detail string) (*ContingencyTransaction, error) {
	db := config.GetDB()
	record := ContingencyTransaction{
		CodeGen:    codeGen,
		StatusId:   statusId,
		Detail:     utils.TruncateErrorDetail(detail),
		IsResolved: utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetUnresolvedContingencies returns pending records oldest first.
func GetUnresolvedContingencies(ctx context.Context) ([]*ContingencyTransaction, error) {
	db := config.GetDB()
	var records []*ContingencyTransaction
	err := db.WithContext(ctx).
		Where("is_resolved = ?", false).
		Order("id ASC").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RecordContingencyAttempt bumps the retry counter and stores the latest
// failure detail.
func RecordContingencyAttempt(ctx context.Context, id int, detail string, at time.Time) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ContingencyTransaction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_try":    at,
			"detail":      utils.TruncateErrorDetail(detail),
		}).Error
}

// ResolveContingency marks the record done after a successful push.
// The resolving attempt counts toward retry_count like the failed ones.
func ResolveContingency(tx *gorm.DB, id int, at time.Time) error {
	return tx.Model(&ContingencyTransaction{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_resolved": true,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_try":    at,
		}).Error
}
