// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3 stores objects in one bucket (container) of an S3-compatible store.
// Object keys equal the persisted path column.
type S3 struct {
	api      s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
}

// S3Config carries the connection settings for one container.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional, for S3-compatible stores
}

// NewS3 builds an S3 backend for the given container.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: s3 bucket is required")
	}
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: s3 session: %w", err)
	}
	return &S3{
		api:      s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   cfg.Bucket,
	}, nil
}

// NewS3WithClient builds an S3 backend around an existing API client, used
// by tests.
func NewS3WithClient(api s3iface.S3API, uploader *s3manager.Uploader, bucket string) *S3 {
	return &S3{api: api, uploader: uploader, bucket: bucket}
}

// Exists reports whether an object is stored under name.
func (s *S3) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
			return false, nil
		}
		return false, fmt.Errorf("storage: head %s/%s: %w", s.bucket, name, err)
	}
	return true, nil
}

// Open returns a reader for the object stored under name.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", s.bucket, name, err)
	}
	return out.Body, nil
}

// Save uploads r under name.
func (s *S3) Save(ctx context.Context, name string, r io.Reader) error {
	if s.uploader != nil {
		_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(name),
			Body:   r,
		})
		if err != nil {
			return fmt.Errorf("storage: upload %s/%s: %w", s.bucket, name, err)
		}
		return nil
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	_, err = s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("storage: put %s/%s: %w", s.bucket, name, err)
	}
	return nil
}
