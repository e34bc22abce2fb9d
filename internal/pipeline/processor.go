package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"docchat-go/internal/config"
	"docchat-go/internal/model"
	"docchat-go/internal/repository"
	"docchat-go/pkg/embedding"
	"docchat-go/pkg/log"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/tasks"
	"docchat-go/pkg/tika"
	"docchat-go/pkg/vectorstore"
)

// 单次 embedding 请求的最大分块数，过大的批次会触发上游限流。
const embedBatchSize = 16

// Processor 封装了文档入库的全部依赖和流程：下载、提取、切分、向量化、写入索引。
type Processor struct {
	tikaClient      *tika.Client
	embeddingClient embedding.Client
	store           vectorstore.Store
	storage         *storage.Client
	documentRepo    repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	embeddingClient embedding.Client,
	store vectorstore.Store,
	storageClient *storage.Client,
	documentRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		store:           store,
		storage:         storageClient,
		documentRepo:    documentRepo,
	}
}

// Process 是文档处理的主函数，由 Kafka 消费者驱动。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessTask) error {
	log.Infof("[Processor] 开始处理文档, Object: %s, FileName: %s, Namespace: %s", task.ObjectName, task.FileName, task.Namespace)

	err := p.process(ctx, task)
	if err != nil {
		if updErr := p.documentRepo.UpdateStatus(task.ObjectName, model.DocumentStatusFailed); updErr != nil {
			log.Errorf("[Processor] 更新文档状态失败, Object: %s, Error: %v", task.ObjectName, updErr)
		}
		return err
	}

	if updErr := p.documentRepo.UpdateStatus(task.ObjectName, model.DocumentStatusCompleted); updErr != nil {
		log.Errorf("[Processor] 更新文档状态失败, Object: %s, Error: %v", task.ObjectName, updErr)
	}
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentProcessTask) error {
	// 1. 从 MinIO 下载文件
	object, err := p.storage.GetObject(ctx, task.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("读取MinIO对象流失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", size)
	if size == 0 {
		return errors.New("文件内容为空")
	}

	// 2. 使用 Tika 提取文本
	textContent, err := p.tikaClient.ExtractText(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	if err != nil {
		log.Errorf("[Processor] 使用Tika提取文本失败, FileName: %s, Error: %v", task.FileName, err)
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块
	chunks := SplitText(textContent, config.Conf.Chat.ChunkSize, config.Conf.Chat.ChunkOverlap)
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		return errors.New("未生成任何文本分块")
	}

	// 4. 分批向量化并写入索引
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embeddings, err := p.embeddingClient.CreateEmbeddings(ctx, batch)
		if err != nil {
			log.Errorf("[Processor] 分块向量化失败, batch [%d:%d], Error: %v", start, end, err)
			return fmt.Errorf("分块向量化失败: %w", err)
		}

		vectors := make([]vectorstore.Vector, 0, len(batch))
		for i, chunk := range batch {
			vectors = append(vectors, vectorstore.Vector{
				ID:     uuid.NewString(),
				Values: embeddings[i],
				Metadata: vectorstore.Metadata{
					Text: chunk,
					File: task.FileName,
				},
			})
		}

		if err := p.store.Upsert(ctx, task.Namespace, vectors); err != nil {
			log.Errorf("[Processor] 向量写入索引失败, batch [%d:%d], Error: %v", start, end, err)
			return fmt.Errorf("向量写入索引失败: %w", err)
		}
		log.Infof("[Processor] 步骤4: 已写入 %d/%d 个分块", end, len(chunks))
	}

	log.Infof("[Processor] 文档处理完成, Object: %s, FileName: %s", task.ObjectName, task.FileName)
	return nil
}
