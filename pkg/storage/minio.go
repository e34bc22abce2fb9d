// Package storage 提供了与对象存储服务（MinIO）交互的功能。
package storage

import (
	"context"
	"io"

	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client 封装了 MinIO 客户端与默认存储桶。
type Client struct {
	minio  *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewClient(cfg config.MinIOConfig) *Client {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	return &Client{minio: mc, bucket: cfg.BucketName}
}

// PutObject 将上传的文件内容写入对象存储。
func (c *Client) PutObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := c.minio.PutObject(ctx, c.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// GetObject 按对象名读取文件内容，调用方负责 Close。
func (c *Client) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	return c.minio.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
}

// RemoveObject 删除指定对象。
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	return c.minio.RemoveObject(ctx, c.bucket, objectName, minio.RemoveObjectOptions{})
}
