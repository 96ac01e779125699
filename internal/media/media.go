// Package media stores user-uploaded files in S3-compatible object storage.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxPhotoSize caps profile picture uploads.
const MaxPhotoSize = 5 << 20

// ErrNotConfigured is returned by uploads when no bucket is set.
var ErrNotConfigured = errors.New("media storage is not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	// PublicURL is the base URL objects are served from. Defaults to Endpoint/Bucket.
	PublicURL string `yaml:"public_url"`
}

func (c Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Uploader writes profile pictures to the configured bucket.
type Uploader struct {
	cfg    Config
	client s3Client
	logger *slog.Logger
}

func NewUploader(cfg Config, logger *slog.Logger) *Uploader {
	u := &Uploader{cfg: cfg, logger: logger.With("component", "media")}
	if cfg.complete() {
		u.client = newS3Client(cfg)
	}
	return u
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Configured reports whether uploads can succeed.
func (u *Uploader) Configured() bool {
	return u.client != nil
}

// PhotoKey is the object key for a user's profile picture.
func PhotoKey(uid string) string {
	return "profile_pictures/" + uid
}

// UploadProfilePhoto stores r as the profile picture of uid, replacing any previous
// one, and returns its public URL.
func (u *Uploader) UploadProfilePhoto(ctx context.Context, uid string, r io.Reader, size int64, contentType string) (string, error) {
	if u.client == nil {
		return "", ErrNotConfigured
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	key := PhotoKey(uid)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload profile photo: %w", err)
	}

	u.logger.Info("profile photo uploaded", "uid", uid, "bytes", size)
	return u.URL(key), nil
}

// URL returns the public URL of key.
func (u *Uploader) URL(key string) string {
	base := u.cfg.PublicURL
	if base == "" {
		base = strings.TrimRight(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket
	}
	return strings.TrimRight(base, "/") + "/" + key
}
