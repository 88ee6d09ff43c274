package postgres

import (
	"context"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
	"gorm.io/gorm"
)

type identityRepository struct {
	db *gorm.DB
}

func (r *identityRepository) Create(ctx context.Context, record ports.IdentityCredentials) error {
	rec := localIdentityModel{
		SubjectID:    record.Identity.SubjectID,
		Email:        record.Identity.Email,
		DisplayName:  record.Identity.DisplayName,
		PasswordHash: record.PasswordHash,
		CreatedAt:    record.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (ports.IdentityCredentials, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *identityRepository) GetBySubject(ctx context.Context, subjectID string) (ports.IdentityCredentials, error) {
	return r.getBy(ctx, "subject_id = ?", subjectID)
}

func (r *identityRepository) Delete(ctx context.Context, subjectID string) error {
	res := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).Delete(&localIdentityModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *identityRepository) getBy(ctx context.Context, query string, arg any) (ports.IdentityCredentials, error) {
	var rec localIdentityModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return ports.IdentityCredentials{}, domain.ErrNotFound
		}
		return ports.IdentityCredentials{}, err
	}
	return toIdentityCredentials(rec), nil
}
