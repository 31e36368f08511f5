// Package archive mirrors vault artifacts to an S3-compatible bucket.
package archive

import (
	"context"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labvault/internal/config"
)

// ObjectPutter is the slice of the S3 client the mirror uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads files under <prefix>/<patient id>/<file name>.
type S3Mirror struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New builds a mirror from config using the default AWS credential chain.
// An empty bucket disables mirroring and returns nil.
func New(ctx context.Context, cfg config.ArchiveConfig, optFns ...func(*s3.Options)) (*S3Mirror, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "archive: load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		for _, fn := range optFns {
			fn(o)
		}
	})
	return NewWithClient(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client ObjectPutter, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for a file in a patient's vault.
func (m *S3Mirror) Key(patientID, file string) string {
	return path.Join(m.prefix, patientID, filepath.Base(file))
}

// Upload puts each file, stopping at the first failure.
func (m *S3Mirror) Upload(ctx context.Context, patientID string, paths []string) error {
	for _, p := range paths {
		if err := m.put(ctx, m.Key(patientID, p), p); err != nil {
			return err
		}
	}
	zap.L().Debug("archive: mirrored artifacts",
		zap.String("patient_id", patientID),
		zap.Int("files", len(paths)),
	)
	return nil
}

func (m *S3Mirror) put(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return eris.Wrapf(err, "archive: open %s", file)
	}
	defer f.Close() //nolint:errcheck

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	}
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return eris.Wrapf(err, "archive: put %s", key)
	}
	return nil
}

func contentType(file string) string {
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
