package infra

import (
	"context"
	"errors"
	"time"

	"access-gateway/middleware/access/domain"

	"gorm.io/gorm"
)

// DynamicAllowRecord é uma linha da allowlist dinâmica no banco.
type DynamicAllowRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Address string `gorm:"size:64;uniqueIndex;not null"`
	Tier    string `gorm:"size:16;not null"`
	Reason  string `gorm:"size:255"`
	AddedAt time.Time
}

func (DynamicAllowRecord) TableName() string { return "access_dynamic_allowlist" }

// allowlistMeta existe para distinguir "nunca gravado" de "gravado vazio".
type allowlistMeta struct {
	ID          uint `gorm:"primaryKey"`
	LastUpdated time.Time
}

func (allowlistMeta) TableName() string { return "access_allowlist_meta" }

// GormPersister grava o conjunto dinâmico via gorm (Postgres em produção).
// Save substitui o conjunto inteiro dentro de uma transação.
type GormPersister struct {
	db *gorm.DB
}

func NewGormPersister(db *gorm.DB) (*GormPersister, error) {
	if err := db.AutoMigrate(&DynamicAllowRecord{}, &allowlistMeta{}); err != nil {
		return nil, err
	}
	return &GormPersister{db: db}, nil
}

func (p *GormPersister) Load(ctx context.Context) (domain.DynamicSnapshot, error) {
	db := p.db.WithContext(ctx)

	var meta allowlistMeta
	err := db.First(&meta, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DynamicSnapshot{}, domain.ErrNoSnapshot
	}
	if err != nil {
		return domain.DynamicSnapshot{}, err
	}

	var rows []DynamicAllowRecord
	if err := db.Order("id").Find(&rows).Error; err != nil {
		return domain.DynamicSnapshot{}, err
	}

	snap := domain.DynamicSnapshot{
		Addresses:   make([]domain.AllowlistEntry, 0, len(rows)),
		LastUpdated: meta.LastUpdated,
	}
	for _, r := range rows {
		snap.Addresses = append(snap.Addresses, domain.AllowlistEntry{
			Address: r.Address,
			Tier:    domain.Tier(r.Tier),
			Origin:  domain.OriginDynamic,
			Reason:  r.Reason,
			AddedAt: r.AddedAt,
		})
	}
	return snap, nil
}

func (p *GormPersister) Save(ctx context.Context, snap domain.DynamicSnapshot) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&DynamicAllowRecord{}).Error; err != nil {
			return err
		}

		if len(snap.Addresses) > 0 {
			rows := make([]DynamicAllowRecord, 0, len(snap.Addresses))
			for _, e := range snap.Addresses {
				rows = append(rows, DynamicAllowRecord{
					Address: e.Address,
					Tier:    string(e.Tier),
					Reason:  e.Reason,
					AddedAt: e.AddedAt,
				})
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return err
			}
		}

		return tx.Save(&allowlistMeta{ID: 1, LastUpdated: snap.LastUpdated}).Error
	})
}
