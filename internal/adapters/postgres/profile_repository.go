package postgres

import (
	"context"
	"time"

	"github.com/viralforge/storefront-identity/internal/domain"
	"github.com/viralforge/storefront-identity/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type profileRepository struct {
	db *gorm.DB
}

func (r *profileRepository) Create(ctx context.Context, params ports.CreateProfileParams) (domain.Profile, error) {
	rec := profileModel{
		ProfileID: params.ID,
		Name:      params.Name,
		Email:     params.Email,
		IsAdmin:   params.IsAdmin,
		CreatedAt: params.CreatedAt,
		UpdatedAt: params.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Profile{}, domain.ErrConflict
		}
		return domain.Profile{}, err
	}
	return toDomainProfile(rec), nil
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	var rec profileModel
	if err := r.db.WithContext(ctx).Where("profile_id = ?", id).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, err
	}
	return toDomainProfile(rec), nil
}

func (r *profileRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("profile_id = ?", id).Delete(&profileModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *profileRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&profileModel{}).Where("is_admin = ?", true).Count(&count).Error
	return count, err
}

func (r *profileRepository) WithinAdminTx(ctx context.Context, fn func(tx ports.ProfileAdminTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&profileAdminTx{tx: tx})
	})
}

// profileAdminTx locks administrator rows before reading or writing so that
// concurrent toggles and deletions serialize on the administrator set.
type profileAdminTx struct {
	tx *gorm.DB
}

func (t *profileAdminTx) LockAdministrators(ctx context.Context) (int64, error) {
	var ids []string
	err := t.tx.WithContext(ctx).
		Model(&profileModel{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("is_admin = ?", true).
		Order("profile_id ASC").
		Pluck("profile_id", &ids).Error
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (t *profileAdminTx) GetForUpdate(ctx context.Context, id string) (domain.Profile, error) {
	var rec profileModel
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("profile_id = ?", id).
		Take(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, err
	}
	return toDomainProfile(rec), nil
}

func (t *profileAdminTx) SetAdmin(ctx context.Context, id string, isAdmin bool, updatedAt time.Time) (domain.Profile, error) {
	res := t.tx.WithContext(ctx).
		Model(&profileModel{}).
		Where("profile_id = ?", id).
		Updates(map[string]any{
			"is_admin":   isAdmin,
			"updated_at": updatedAt,
		})
	if res.Error != nil {
		return domain.Profile{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Profile{}, domain.ErrNotFound
	}
	return t.GetForUpdate(ctx, id)
}

func (t *profileAdminTx) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	rec := toOutboxModel(event)
	return t.tx.WithContext(ctx).Create(&rec).Error
}
