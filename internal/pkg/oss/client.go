package oss

import (
	"bytes"
	"fmt"
	"path"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/toolbox_server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	prefix     string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("oss endpoint and bucket_name are required")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		prefix:     cfg.ArchivePrefix,
	}, nil
}

// UploadArchive 上传日志归档文件，返回 object key
func (c *Client) UploadArchive(from, to time.Time, data []byte) (string, error) {
	objectKey := ArchiveKey(c.prefix, from, to)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType("application/x-ndjson"))
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	return objectKey, nil
}

// Exists 判断归档是否已存在
func (c *Client) Exists(objectKey string) (bool, error) {
	ok, err := c.bucket.IsObjectExist(objectKey)
	if err != nil {
		return false, fmt.Errorf("failed to check object: %w", err)
	}
	return ok, nil
}

// SignedURL 生成带签名的临时下载地址
func (c *Client) SignedURL(objectKey string, expire time.Duration) (string, error) {
	if expire <= 0 {
		expire = time.Hour
	}
	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, int64(expire.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return signedURL, nil
}

// ArchiveKey 归档文件路径：<prefix>/<yyyy>/<mm>/<from>_<to>.jsonl
func ArchiveKey(prefix string, from, to time.Time) string {
	if prefix == "" {
		prefix = "system-logs"
	}
	from, to = from.UTC(), to.UTC()
	name := fmt.Sprintf("%s_%s.jsonl", from.Format("20060102T150405Z"), to.Format("20060102T150405Z"))
	return path.Join(prefix, to.Format("2006"), to.Format("01"), name)
}
