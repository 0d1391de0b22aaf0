package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"merkleverifier/internal/domain"

	"gorm.io/gorm"
)

type VerifierRepository struct {
	db *gorm.DB
}

func NewVerifierRepository(db *gorm.DB) *VerifierRepository {
	return &VerifierRepository{db: db}
}

func (r *VerifierRepository) Create(ctx context.Context, record domain.VerifierRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if record.ID == "" {
		return errors.New("verifier id is required")
	}
	model := verifierModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: verifier %s already exists", domain.ErrConflict, record.ID)
		}
		return err
	}
	return nil
}

func (r *VerifierRepository) Get(ctx context.Context, id string) (*domain.VerifierRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model VerifierModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	record := verifierFromModel(model)
	return &record, nil
}

// UpdateRoot is a compare-and-swap on the version column.
func (r *VerifierRepository) UpdateRoot(ctx context.Context, id string, root domain.Digest, version int64, updatedAt time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	res := r.db.WithContext(ctx).
		Model(&VerifierModel{}).
		Where("id = ? AND version = ?", id, version-1).
		Updates(map[string]any{
			"expected_root": copyBytes(root),
			"version":       version,
			"updated_at":    updatedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&VerifierModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: verifier %s is not at version %d", domain.ErrConflict, id, version-1)
}

func verifierModelFromDomain(record domain.VerifierRecord) VerifierModel {
	return VerifierModel{
		ID:           record.ID,
		Owner:        string(record.Owner),
		HashAlg:      record.HashAlg,
		ExpectedRoot: copyBytes(record.ExpectedRoot),
		Version:      record.Version,
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
}

func verifierFromModel(model VerifierModel) domain.VerifierRecord {
	var root domain.Digest
	if len(model.ExpectedRoot) > 0 {
		root = domain.NewDigest(model.ExpectedRoot)
	}
	return domain.VerifierRecord{
		ID:           model.ID,
		Owner:        domain.Identity(model.Owner),
		HashAlg:      model.HashAlg,
		ExpectedRoot: root,
		Version:      model.Version,
		CreatedAt:    model.CreatedAt.UTC(),
		UpdatedAt:    model.UpdatedAt.UTC(),
	}
}
