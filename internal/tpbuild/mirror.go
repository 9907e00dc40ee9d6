package tpbuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror serves archive downloads out of an S3-compatible bucket
// (including Cloudflare R2) configured as the alternate mirror.
type S3Mirror struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// NewS3Mirror builds a mirror client from an s3://bucket/prefix URL and the
// credentials in the settings file.
func NewS3Mirror(mirrorURL string, st *Settings) (*S3Mirror, error) {
	rest := strings.TrimPrefix(mirrorURL, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return nil, fmt.Errorf("invalid s3 mirror URL: %q", mirrorURL)
	}
	if st.S3.AccessKeyID == "" || st.S3.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 mirror %s configured but credentials missing in %s", mirrorURL, SettingsFileName)
	}

	region := st.S3.Region
	if region == "" {
		region = "auto"
	}
	options := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(st.S3.AccessKeyID, st.S3.SecretAccessKey, "")),
		config.WithRegion(region),
	}
	if Verbose {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if st.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(st.S3.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Mirror{Client: client, Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// Download fetches a file from the bucket into destPath.
func (m *S3Mirror) Download(ctx context.Context, fileName, destPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	key := fileName
	if m.Prefix != "" {
		key = m.Prefix + "/" + fileName
	}
	debugf("Fetching s3://%s/%s\n", m.Bucket, key)
	output, err := m.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 mirror get %s: %w", key, err)
	}
	defer output.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, output.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}
