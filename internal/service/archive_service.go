package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"exam_center_backend/internal/config"
	"exam_center_backend/internal/repository"
	"exam_center_backend/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveProvider 成绩归档的存储后端
type ArchiveProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	GetURL(filename string) string
}

// LocalArchiveProvider 本地磁盘归档
type LocalArchiveProvider struct {
	Config *config.StorageConfig
}

func (p *LocalArchiveProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filename)
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err = io.Copy(out, reader); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *LocalArchiveProvider) GetURL(filename string) string {
	return "/archives/" + filename
}

// MinioArchiveProvider MinIO 归档
type MinioArchiveProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioArchiveProvider(cfg *config.StorageConfig) (*MinioArchiveProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}
	return &MinioArchiveProvider{Config: cfg, Client: client}, nil
}

func (p *MinioArchiveProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioArchiveProvider) GetURL(filename string) string {
	return fmt.Sprintf("http://%s/%s/%s", p.Config.MinioEndpoint, p.Config.MinioBucket, filename)
}

// ArchiveService 把整场考试的阅卷结果导出为 JSON 归档文件，
// 对应旧系统落盘的 graded_*.json 文档，供离线留档和二次分析。
type ArchiveService struct {
	Results  *repository.GradedResultRepository
	Provider ArchiveProvider
}

func NewArchiveService(cfg *config.Config, results *repository.GradedResultRepository) (*ArchiveService, error) {
	var provider ArchiveProvider
	switch cfg.Storage.Type {
	case util.StorageMinio:
		p, err := NewMinioArchiveProvider(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		provider = p
	case util.StorageLocal, "":
		provider = &LocalArchiveProvider{Config: &cfg.Storage}
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
	return &ArchiveService{Results: results, Provider: provider}, nil
}

type examArchive struct {
	ExamID     string      `json:"examId"`
	ExportedAt time.Time   `json:"exportedAt"`
	Count      int         `json:"count"`
	Results    interface{} `json:"results"`
}

// ExportExamResults 导出一场考试的全部阅卷结果，返回归档文件地址
func (s *ArchiveService) ExportExamResults(ctx context.Context, examID string) (string, error) {
	results, err := s.Results.ListByExam(examID)
	if err != nil {
		return "", err
	}

	payload, err := json.MarshalIndent(examArchive{
		ExamID:     examID,
		ExportedAt: time.Now(),
		Count:      len(results),
		Results:    results,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("graded_%s_%d.json", examID, time.Now().Unix())
	return s.Provider.Upload(ctx, filename, bytes.NewReader(payload), int64(len(payload)), "application/json")
}
