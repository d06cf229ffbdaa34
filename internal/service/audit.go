package service

import (
	"context"

	"github.com/keyward-dev/keyward/internal/models"
	"gorm.io/gorm"
)

// AuditService reads the audit trail.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditService.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// List returns one page of audit entries, newest first. Empty filters match everything.
func (s *AuditService) List(ctx context.Context, actor, action string, page PageRequest) (*Page[models.AuditLog], error) {
	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if actor != "" {
		query = query.Where("actor = ?", actor)
	}
	if action != "" {
		query = query.Where("action = ?", action)
	}
	return paginate[models.AuditLog](query, page, "timestamp DESC, id DESC")
}
