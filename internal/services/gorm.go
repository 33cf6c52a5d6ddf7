package services

import (
	"context"
	"errors"

	"github.com/pu-ac-cn/sso-center/internal/model"
	"gorm.io/gorm"
)

// GormServiceRegistry 数据库后端服务注册表
// 明文列（名称、服务标识、评估序号）用于检索排序，
// Encoded 列持久化完整的 JSON 快照
type GormServiceRegistry struct {
	db   *gorm.DB
	name string
}

// NewGormServiceRegistry 创建数据库后端服务注册表
func NewGormServiceRegistry(db *gorm.DB) *GormServiceRegistry {
	return &GormServiceRegistry{db: db, name: "gorm"}
}

// toRow 服务快照转数据库行
func toRow(svc *RegisteredService) (*model.RegisteredServiceRow, error) {
	encoded, err := svc.Encode()
	if err != nil {
		return nil, err
	}
	return &model.RegisteredServiceRow{
		ID:              svc.ID,
		Name:            svc.Name,
		Description:     svc.Description,
		ServiceID:       svc.ServiceID,
		EvaluationOrder: svc.EvaluationOrder,
		Encoded:         encoded,
	}, nil
}

// fromRow 数据库行还原服务快照，以 Encoded 快照为准
func fromRow(row *model.RegisteredServiceRow) (*RegisteredService, error) {
	svc, err := DecodeRegisteredService(row.Encoded)
	if err != nil {
		return nil, err
	}
	svc.ID = row.ID
	return svc, nil
}

// Save 保存服务
func (r *GormServiceRegistry) Save(ctx context.Context, svc *RegisteredService) (*RegisteredService, error) {
	clone := svc.Copy()
	row, err := toRow(clone)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, err
	}

	// 新建服务回填数据库分配的 ID 并重写快照，保证 Encoded 与行一致
	if clone.ID != row.ID {
		clone.ID = row.ID
		encoded, err := clone.Encode()
		if err != nil {
			return nil, err
		}
		if err := r.db.WithContext(ctx).Model(row).Update("encoded", encoded).Error; err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// Delete 删除服务
func (r *GormServiceRegistry) Delete(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.RegisteredServiceRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Load 返回全部服务，按 (evaluation_order, id) 升序
func (r *GormServiceRegistry) Load(ctx context.Context) ([]*RegisteredService, error) {
	var rows []*model.RegisteredServiceRow
	err := r.db.WithContext(ctx).
		Order("evaluation_order ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]*RegisteredService, 0, len(rows))
	for _, row := range rows {
		svc, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, nil
}

// FindServiceByID 按数字 ID 查找
func (r *GormServiceRegistry) FindServiceByID(ctx context.Context, id int64) (*RegisteredService, error) {
	var row model.RegisteredServiceRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRow(&row)
}

// FindServiceByExactServiceID 按服务标识精确匹配
func (r *GormServiceRegistry) FindServiceByExactServiceID(ctx context.Context, serviceID string) (*RegisteredService, error) {
	var row model.RegisteredServiceRow
	err := r.db.WithContext(ctx).Where("service_id = ?", serviceID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRow(&row)
}

// FindServiceByName 按名称查找
func (r *GormServiceRegistry) FindServiceByName(ctx context.Context, name string) (*RegisteredService, error) {
	var row model.RegisteredServiceRow
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return fromRow(&row)
}

// FindServiceBy 按匹配模式查找，低序号服务优先命中
func (r *GormServiceRegistry) FindServiceBy(ctx context.Context, serviceID string) (*RegisteredService, error) {
	candidates, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return matchOrdered(candidates, serviceID), nil
}

// Size 服务数量
func (r *GormServiceRegistry) Size(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RegisteredServiceRow{}).Count(&count).Error
	return int(count), err
}

// Name 注册表名称
func (r *GormServiceRegistry) Name() string { return r.name }
