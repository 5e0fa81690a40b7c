package repository

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/castline"
	"github.com/totegamma/castline/internal/domain"
	"github.com/totegamma/castline/internal/infra/database/models"
)

// DocumentRepository stores every collection in the documents table.
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) GetDocument(ctx context.Context, collection, key string) (castline.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		Take(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFoundError{Resource: collection + "/" + key}
		}
		return nil, err
	}
	return toDocument(doc.Body)
}

func (r *DocumentRepository) ListDocuments(ctx context.Context, collection string) ([]castline.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("key").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}

	out := make([]castline.Document, 0, len(docs))
	for _, doc := range docs {
		d, err := toDocument(doc.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// SetDocument writes doc under key. With merge, the stored body is locked and
// doc's top-level fields are laid over it.
func (r *DocumentRepository) SetDocument(ctx context.Context, collection, key string, doc castline.Document, merge bool) error {
	if !merge {
		return upsert(r.db.WithContext(ctx), collection, key, doc)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND key = ?", collection, key).
			Take(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		body := doc
		if err == nil {
			current, err := toDocument(existing.Body)
			if err != nil {
				return err
			}
			body = castline.Merge(current, doc)
		}
		return upsert(tx, collection, key, body)
	})
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, collection, key string) error {
	return r.db.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		Delete(&models.Document{}).Error
}

func upsert(tx *gorm.DB, collection, key string, body castline.Document) error {
	if body == nil {
		body = castline.Document{}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "m_date"}),
	}).Create(&models.Document{
		Collection: collection,
		Key:        key,
		Body:       datatypes.JSONMap(body),
	}).Error
}

// toDocument re-decodes the body so numbers come back as float64 rather than
// the json.Number values JSONMap scans into.
func toDocument(body datatypes.JSONMap) (castline.Document, error) {
	return castline.Document(body).Clone()
}
