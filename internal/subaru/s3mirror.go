package subaru

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps an S3-compatible object store holding repository
// indexes, used as a fallback when the plain HTTP mirror is unreachable.
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// NewMirrorClient initializes the fallback client from configuration values.
func NewMirrorClient(cfg *Config) (*MirrorClient, error) {
	endpoint := cfg.Values["S3_ENDPOINT"]
	accessKey := cfg.Values["S3_ACCESS_KEY_ID"]
	secretKey := cfg.Values["S3_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["S3_BUCKET_NAME"]

	if endpoint == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("S3 mirror credentials missing in configuration (S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_BUCKET_NAME)")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint}, nil
	})

	options := []func(*config.LoadOptions) error{
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	}

	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
	}, nil
}

// DownloadFile fetches an object from the mirror bucket.
func (m *MirrorClient) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	output, err := m.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	return io.ReadAll(output.Body)
}

// FetchRepoIndex downloads a repository's index from the mirror bucket.
// When the expected key is absent (the mirror may carry a differently
// compressed variant) the repo's prefix is listed and the first index object
// found is used instead. Returns the data and the key it came from, so the
// caller can pick the right decompressor.
func (m *MirrorClient) FetchRepoIndex(ctx context.Context, repoName, indexName string) ([]byte, string, error) {
	key := path.Join(repoName, indexName)
	data, err := m.DownloadFile(ctx, key)
	if err == nil {
		return data, key, nil
	}
	debugf("Mirror object %s missing: %v, listing prefix\n", key, err)

	keys, listErr := m.ListObjects(ctx, repoName+"/")
	if listErr != nil {
		return nil, "", err
	}
	for _, candidate := range keys {
		base := path.Base(candidate)
		if base == "index.json" || strings.HasPrefix(base, "index.json.") {
			data, dlErr := m.DownloadFile(ctx, candidate)
			if dlErr != nil {
				continue
			}
			return data, candidate, nil
		}
	}
	return nil, "", err
}

// ListObjects returns the keys under a prefix.
func (m *MirrorClient) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.BucketName),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}
