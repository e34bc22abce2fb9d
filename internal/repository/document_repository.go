package repository

import (
	"gorm.io/gorm"

	"docchat-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByNamespace(namespace string) ([]model.Document, error)
	FindByObjectName(objectName string) (*model.Document, error)
	FindByNamespaceAndFileName(namespace, fileName string) (*model.Document, error)
	UpdateStatus(objectName string, status int) error
	Delete(doc *model.Document) error
	DeleteByNamespace(namespace string) error
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条文档记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// FindByNamespace 返回指定命名空间下的全部文档记录，按上传时间倒序。
func (r *documentRepository) FindByNamespace(namespace string) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("namespace = ?", namespace).Order("created_at DESC").Find(&docs).Error
	return docs, err
}

// FindByObjectName 根据对象存储名查找文档记录。
func (r *documentRepository) FindByObjectName(objectName string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("object_name = ?", objectName).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByNamespaceAndFileName 在命名空间内按原始文件名查找文档记录。
func (r *documentRepository) FindByNamespaceAndFileName(namespace, fileName string) (*model.Document, error) {
	var doc model.Document
	err := r.db.Where("namespace = ? AND file_name = ?", namespace, fileName).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpdateStatus 更新文档的处理状态。
func (r *documentRepository) UpdateStatus(objectName string, status int) error {
	return r.db.Model(&model.Document{}).Where("object_name = ?", objectName).Update("status", status).Error
}

// Delete 删除一条文档记录。
func (r *documentRepository) Delete(doc *model.Document) error {
	return r.db.Delete(doc).Error
}

// DeleteByNamespace 删除指定命名空间下的全部文档记录。
func (r *documentRepository) DeleteByNamespace(namespace string) error {
	return r.db.Where("namespace = ?", namespace).Delete(&model.Document{}).Error
}
