package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Record is one archived analysis transcript: the exact prompts sent and
// the raw model text received, kept for audit.
type Record struct {
	RepoKey    string    `json:"repoKey"`
	CommitSha  string    `json:"commitSha,omitempty"`
	Policy     string    `json:"policy"`
	System     string    `json:"system"`
	User       string    `json:"user"`
	Response   string    `json:"response"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Store archives transcripts. A nil *S3Store is a valid no-op store, so
// callers need no enabled/disabled branching.
type Store interface {
	Put(ctx context.Context, rec Record) error
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put archives one transcript under <repoKey>/<commitSha-or-timestamp>.json.
func (s *S3Store) Put(ctx context.Context, rec Record) error {
	if s == nil {
		return nil
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now().UTC()
	}

	name := rec.CommitSha
	if name == "" {
		name = rec.ArchivedAt.UTC().Format("20060102T150405Z")
	}
	objectName := fmt.Sprintf("%s/%s.json", rec.RepoKey, name)

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucketName, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive transcript %s: %w", objectName, err)
	}
	return nil
}
