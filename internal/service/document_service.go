package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/pipeline"
	"docchat-go/internal/repository"
	"docchat-go/pkg/kafka"
	"docchat-go/pkg/log"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/tasks"
	"docchat-go/pkg/tika"
	"docchat-go/pkg/vectorstore"
)

// DocumentService 定义了文档上传、列表与删除的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, namespace, fileName string, reader io.Reader, size int64, contentType string) (*model.Document, error)
	List(namespace string) ([]model.Document, error)
	Delete(ctx context.Context, namespace, fileName string) error
}

type documentService struct {
	documentRepo repository.DocumentRepository
	storage      *storage.Client
	tikaClient   *tika.Client
	store        vectorstore.Store
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(
	documentRepo repository.DocumentRepository,
	storageClient *storage.Client,
	tikaClient *tika.Client,
	store vectorstore.Store,
) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		storage:      storageClient,
		tikaClient:   tikaClient,
		store:        store,
	}
}

// Upload 把文件写入对象存储、登记元数据，并投递异步处理任务。
// 解析与向量化在 Kafka 消费端完成，接口立即返回。
func (s *documentService) Upload(ctx context.Context, namespace, fileName string, reader io.Reader, size int64, contentType string) (*model.Document, error) {
	objectName := fmt.Sprintf("%s/%s%s", namespace, uuid.NewString(), filepath.Ext(fileName))

	if err := s.storage.PutObject(ctx, objectName, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	doc := &model.Document{
		FileName:   fileName,
		ObjectName: objectName,
		Namespace:  namespace,
		Size:       size,
		Status:     model.DocumentStatusPending,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		// 回滚对象存储写入，避免产生孤儿对象
		if rmErr := s.storage.RemoveObject(ctx, objectName); rmErr != nil {
			log.Errorf("回滚对象存储失败: %s, %v", objectName, rmErr)
		}
		return nil, fmt.Errorf("登记文档元数据失败: %w", err)
	}

	task := tasks.DocumentProcessTask{
		ObjectName: objectName,
		FileName:   fileName,
		Namespace:  namespace,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		return nil, fmt.Errorf("投递文档处理任务失败: %w", err)
	}

	log.Infof("文档已上传并投递处理任务: %s (namespace=%s)", fileName, namespace)
	return doc, nil
}

// List 返回命名空间下的全部文档记录。
func (s *documentService) List(namespace string) ([]model.Document, error) {
	return s.documentRepo.FindByNamespace(namespace)
}

// Delete 删除一个文档及其在向量索引中的全部分块。
// 索引侧按分块正文匹配回收：重新提取并切分原文，扫描命名空间内的样本，
// 删除正文命中的向量。扫描上限之外的残留分块不再追踪，属于尽力而为的清理。
func (s *documentService) Delete(ctx context.Context, namespace, fileName string) error {
	doc, err := s.documentRepo.FindByNamespaceAndFileName(namespace, fileName)
	if err != nil {
		return fmt.Errorf("查找文档记录失败: %w", err)
	}

	if err := s.deleteVectors(ctx, namespace, doc); err != nil {
		// 向量清理失败不阻塞删除，记录后继续回收元数据与对象
		log.Errorf("清理文档向量失败: %s, %v", fileName, err)
	}

	if err := s.documentRepo.Delete(doc); err != nil {
		return fmt.Errorf("删除文档记录失败: %w", err)
	}

	if err := s.storage.RemoveObject(ctx, doc.ObjectName); err != nil {
		log.Errorf("删除对象存储文件失败: %s, %v", doc.ObjectName, err)
	}

	log.Infof("文档已删除: %s (namespace=%s)", fileName, namespace)
	return nil
}

func (s *documentService) deleteVectors(ctx context.Context, namespace string, doc *model.Document) error {
	// 1. 重新推导该文件的分块集合
	object, err := s.storage.GetObject(ctx, doc.ObjectName)
	if err != nil {
		return fmt.Errorf("下载原始文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return fmt.Errorf("读取原始文件失败: %w", err)
	}

	textContent, err := s.tikaClient.ExtractText(ctx, bytes.NewReader(buf.Bytes()), doc.FileName)
	if err != nil {
		return fmt.Errorf("重新提取文本失败: %w", err)
	}

	chunks := pipeline.SplitText(textContent, config.Conf.Chat.ChunkSize, config.Conf.Chat.ChunkOverlap)
	chunkSet := make(map[string]struct{}, len(chunks))
	for _, chunk := range chunks {
		chunkSet[chunk] = struct{}{}
	}

	// 2. 扫描命名空间内的样本，按正文匹配待删分块
	matches, err := s.store.Scan(ctx, namespace, config.Conf.Chat.DeleteScanTopK)
	if err != nil {
		return fmt.Errorf("扫描命名空间向量失败: %w", err)
	}

	var ids []string
	for _, m := range matches {
		if _, ok := chunkSet[m.Metadata.Text]; ok {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.store.DeleteByIDs(ctx, namespace, ids); err != nil {
		return fmt.Errorf("删除向量失败: %w", err)
	}
	log.Infof("已从索引删除 %d 个分块: %s", len(ids), doc.FileName)
	return nil
}
