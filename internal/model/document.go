package model

import "time"

// 文档处理状态。
const (
	DocumentStatusPending   = 0 // 已上传，等待解析入库
	DocumentStatusCompleted = 1 // 解析入库完成
	DocumentStatusFailed    = 2 // 处理失败
)

// Document 定义了 document 表的 ORM 模型。
// 每条记录对应一个已上传的文档及其在对象存储中的位置。
type Document struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName   string    `gorm:"type:varchar(255);not null" json:"fileName"`
	ObjectName string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"objectName"`
	Namespace  string    `gorm:"type:varchar(100);index;not null" json:"namespace"`
	Size       int64     `gorm:"not null" json:"size"`
	Status     int       `gorm:"type:tinyint;not null;default:0" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "document"
}
