package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"docchat-go/internal/config"
	"docchat-go/internal/repository"
	"docchat-go/pkg/database"
	"docchat-go/pkg/log"
	"docchat-go/pkg/storage"
	"docchat-go/pkg/token"
	"docchat-go/pkg/vectorstore"
)

const guestSessionsKey = "guest:sessions"

// GuestService 管理未登录访客的临时会话。
// 会话记录在 Redis 的有序集合中，score 为过期时间戳，
// 后台任务定期清理过期会话连同其命名空间下的全部数据。
type GuestService interface {
	CreateSession(ctx context.Context) (string, error)
	TouchSession(ctx context.Context, sessionToken string) error
	// ResetSession 清空会话命名空间下的数据但保留会话登记，供重新上传前调用。
	ResetSession(ctx context.Context, sessionToken string) error
	Teardown(ctx context.Context, sessionToken string) error
	StartJanitor(interval time.Duration)
}

type guestService struct {
	documentRepo repository.DocumentRepository
	store        vectorstore.Store
	storage      *storage.Client
}

// NewGuestService 创建一个新的 GuestService 实例。
func NewGuestService(documentRepo repository.DocumentRepository, store vectorstore.Store, storageClient *storage.Client) GuestService {
	return &guestService{
		documentRepo: documentRepo,
		store:        store,
		storage:      storageClient,
	}
}

// CreateSession 生成一个新的访客会话并登记过期时间。
func (s *guestService) CreateSession(ctx context.Context) (string, error) {
	sessionToken := token.GenerateRandomString(32)
	if err := s.register(ctx, sessionToken); err != nil {
		return "", err
	}
	log.Infof("创建访客会话: %s", sessionToken)
	return sessionToken, nil
}

// TouchSession 延长已有会话的过期时间。会话不存在时重新登记。
func (s *guestService) TouchSession(ctx context.Context, sessionToken string) error {
	return s.register(ctx, sessionToken)
}

func (s *guestService) register(ctx context.Context, sessionToken string) error {
	ttl := time.Duration(config.Conf.Guest.SessionTTLHours) * time.Hour
	expireAt := time.Now().Add(ttl).Unix()
	return database.RDB.ZAdd(ctx, guestSessionsKey, &redis.Z{
		Score:  float64(expireAt),
		Member: sessionToken,
	}).Err()
}

// ResetSession 清空会话命名空间下的向量、文档记录与对象存储文件。
// 会话登记保留，同一个令牌可以继续上传。
func (s *guestService) ResetSession(ctx context.Context, sessionToken string) error {
	if err := s.purgeNamespace(ctx, GuestNamespace(sessionToken)); err != nil {
		return err
	}
	log.Infof("访客会话数据已重置: %s", sessionToken)
	return nil
}

// Teardown 清理一个访客会话的全部痕迹：向量、文档记录、对象存储文件与会话登记。
func (s *guestService) Teardown(ctx context.Context, sessionToken string) error {
	var errs []error

	if err := s.purgeNamespace(ctx, GuestNamespace(sessionToken)); err != nil {
		errs = append(errs, err)
	}

	// 移除会话登记
	if err := database.RDB.ZRem(ctx, guestSessionsKey, sessionToken).Err(); err != nil {
		errs = append(errs, fmt.Errorf("移除会话登记失败: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	log.Infof("访客会话已清理: %s", sessionToken)
	return nil
}

// purgeNamespace 回收一个命名空间下的全部数据：向量、对象存储文件、文档元数据。
func (s *guestService) purgeNamespace(ctx context.Context, namespace string) error {
	var errs []error

	// 1. 删除命名空间下的全部向量
	if err := s.store.DeleteAll(ctx, namespace); err != nil {
		errs = append(errs, fmt.Errorf("删除向量失败: %w", err))
	}

	// 2. 删除对象存储中的文件
	docs, err := s.documentRepo.FindByNamespace(namespace)
	if err != nil {
		errs = append(errs, fmt.Errorf("查询文档记录失败: %w", err))
	} else {
		for _, doc := range docs {
			if err := s.storage.RemoveObject(ctx, doc.ObjectName); err != nil {
				errs = append(errs, fmt.Errorf("删除对象 %s 失败: %w", doc.ObjectName, err))
			}
		}
	}

	// 3. 删除文档元数据
	if err := s.documentRepo.DeleteByNamespace(namespace); err != nil {
		errs = append(errs, fmt.Errorf("删除文档记录失败: %w", err))
	}

	return errors.Join(errs...)
}

// StartJanitor 启动后台清理任务，周期性回收已过期的访客会话。
func (s *guestService) StartJanitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			s.sweepExpired(context.Background())
		}
	}()
}

func (s *guestService) sweepExpired(ctx context.Context) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	expired, err := database.RDB.ZRangeByScore(ctx, guestSessionsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		log.Errorf("扫描过期访客会话失败: %v", err)
		return
	}

	for _, sessionToken := range expired {
		if err := s.Teardown(ctx, sessionToken); err != nil {
			log.Errorf("清理过期访客会话失败: %s, %v", sessionToken, err)
		}
	}
}
