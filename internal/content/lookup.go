// Package content resolves the deliverable photo bundle for a customer
// folder key by listing an S3 bucket under a fixed key-prefix convention.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// keyPrefix scopes every customer's uploads inside the shared bucket.
const keyPrefix = "customer_"

// imageExtensions is the allow-list of deliverable object suffixes.
// Matching is case-sensitive: the upload pipeline writes camera originals
// as .JPG and processed images as .png.
var imageExtensions = []string{".JPG", ".png"}

// ObjectLister is the slice of the S3 API the service needs.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Service lists photo bundles from an object store bucket.
type Service struct {
	client ObjectLister
	bucket string
	region string
	logger *slog.Logger
}

type ServiceConfig struct {
	Client ObjectLister
	Bucket string
	Region string
	Logger *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		client: cfg.Client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: cfg.Logger,
	}
}

// Lookup returns the public URLs of all image objects under
// customer_<folderKey>, in listing order. An empty slice means "no content
// yet" and is a valid result; store failures and missing configuration are
// logged and also surface as an empty slice, never as an error.
func (s *Service) Lookup(ctx context.Context, folderKey string) []string {
	urls, err := s.list(ctx, folderKey)
	if err != nil {
		s.logger.Error("content lookup failed", "folder_key", folderKey, "err", err)
		return nil
	}
	return urls
}

func (s *Service) list(ctx context.Context, folderKey string) ([]string, error) {
	if s.bucket == "" {
		return nil, fmt.Errorf("bucket name is not configured")
	}

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix + folderKey),
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var urls []string
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if !isImage(key) {
			continue
		}
		urls = append(urls, s.objectURL(key))
	}

	s.logger.Info("content lookup", "folder_key", folderKey, "objects", len(out.Contents), "photos", len(urls))
	return urls, nil
}

func isImage(key string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(key, ext) {
			return true
		}
	}
	return false
}

// objectURL renders the public virtual-hosted address of an object.
func (s *Service) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
