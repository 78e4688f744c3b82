package archive

import (
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/backstead/backstead/internal/config"
	"github.com/backstead/backstead/internal/logging"
)

// S3Destination stores archives in S3 or S3-compatible storage.
type S3Destination struct {
	cfg    config.S3DestConfig
	client *s3.S3
}

func NewS3Destination(cfg config.S3DestConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
	}

	// Custom endpoint for S3-compatible storage (MinIO et al.).
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Destination{cfg: cfg, client: s3.New(sess)}, nil
}

func (d *S3Destination) Store(localPath, key string) error {
	objectKey := path.Join(d.cfg.Prefix, key)

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	_, err = d.client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(d.cfg.Bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	logging.L().Debug("archive_stored", "destination", "s3", "bucket", d.cfg.Bucket, "key", objectKey)
	return nil
}

func (d *S3Destination) Retrieve(key, localPath string) error {
	objectKey := path.Join(d.cfg.Prefix, key)

	result, err := d.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := out.ReadFrom(result.Body); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

func (d *S3Destination) Delete(key string) error {
	objectKey := path.Join(d.cfg.Prefix, key)
	_, err := d.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

func (d *S3Destination) Type() string { return "s3" }
