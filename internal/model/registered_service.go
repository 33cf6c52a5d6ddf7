package model

import "time"

// RegisteredServiceRow 注册服务的数据库行
// 明文列用于检索与排序，Encoded 列保存完整的 JSON 快照
type RegisteredServiceRow struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(255);index" json:"name"`
	Description     string    `gorm:"type:varchar(500)" json:"description"`
	ServiceID       string    `gorm:"column:service_id;type:varchar(500);index" json:"service_id"`
	EvaluationOrder int       `gorm:"index" json:"evaluation_order"`
	Encoded         []byte    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName 指定表名
func (RegisteredServiceRow) TableName() string {
	return "registered_services"
}
