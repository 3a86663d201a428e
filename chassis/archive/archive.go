// Package archive keeps proof-of-pack documents after they were uploaded.
package archive

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Archiver - ...
type Archiver interface {
	Store(ctx context.Context, orderName string, doc []byte) (string, error)
}

// Config - ...
type Config struct {
	Bucket   string
	Prefix   string
	// Endpoint overrides the S3 endpoint (S3 compatible stores); path style addressing is used with it.
	Endpoint string

	Region             string
	CredentialsFile    string
	CredentialsProfile string
	Retries            int
}

// S3Archiver - ...
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader *s3manager.Uploader
}

// InitS3Archiver - ...
func InitS3Archiver(cfg Config) *S3Archiver {
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewSharedCredentials(cfg.CredentialsFile, cfg.CredentialsProfile),
		MaxRetries:  aws.Int(cfg.Retries),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	ssn := session.New(awsCfg)
	return &S3Archiver{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: s3manager.NewUploader(ssn),
	}
}

var nameSeparators = strings.NewReplacer("/", "_", "\\", "_")

// Key returns the object key of an order document. Separators in the order
// name are replaced so the key always stays under prefix.
func Key(prefix, orderName string) string {
	return path.Join(prefix, nameSeparators.Replace(orderName)+".zip")
}

// Store - ...
func (a *S3Archiver) Store(ctx context.Context, orderName string, doc []byte) (string, error) {
	key := Key(a.prefix, orderName)
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", err
	}
	return key, nil
}
