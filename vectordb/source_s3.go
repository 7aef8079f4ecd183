package vectordb

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

// s3API is the part of *s3.Client the source needs.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads snapshots from s3://<Bucket>/<Prefix>/<jurisdiction>/<index>.json.
type S3Source struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Source uses the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg config.SnapshotConfig) (*S3Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newS3Source(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

func newS3Source(client s3API, bucket, prefix string) *S3Source {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) Jurisdictions(ctx context.Context) ([]string, error) {
	var out []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			j := strings.Trim(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if j != "" {
				out = append(out, j)
			}
		}
	}
	return sortedUnique(out), nil
}

func (s *S3Source) Indexes(ctx context.Context, jurisdiction string) ([]string, error) {
	dir := s.prefix + jurisdiction + "/"
	var out []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(dir),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, dir, err)
		}
		for _, obj := range page.Contents {
			if name, ok := indexNameFromFile(path.Base(aws.ToString(obj.Key))); ok {
				out = append(out, name)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w %q", ErrUnknownJurisdiction, jurisdiction)
	}
	return sortedUnique(out), nil
}

func (s *S3Source) Open(ctx context.Context, jurisdiction, index string) (io.ReadCloser, error) {
	key := s.prefix + jurisdiction + "/" + index + ".json"
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}
