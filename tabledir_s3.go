// S3TableDirectory is an optional object-store-backed TableDirectory
// (SPEC_FULL.md §C.2), satisfying the same interface as
// LocalTableDirectory. Grounded in the S3-backed persistence layer found
// elsewhere in the example pack: a factory holding connection settings,
// a lazily-opened client, and a key prefix per table.
package feastore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
)

// S3Config holds the connection settings for an S3-backed table directory.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores (MinIO, etc.)
	Bucket          string
	Prefix          string // object key prefix for this table
	ForcePathStyle  bool
}

// S3TableDirectory stores a table's catalog and segments as objects
// under config.Prefix in config.Bucket. S3 has no local directory
// listing cache; Index() always calls ListObjectsV2.
type S3TableDirectory struct {
	config S3Config

	mu     sync.Mutex
	client *s3.Client
}

// NewS3TableDirectory returns a TableDirectory backed by S3-compatible
// object storage. The client connects lazily on first use.
func NewS3TableDirectory(config S3Config) *S3TableDirectory {
	return &S3TableDirectory{config: config}
}

func (d *S3TableDirectory) ensureClient(ctx context.Context) (*s3.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return d.client, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if d.config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(d.config.Region))
	}
	if d.config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.config.AccessKeyID, d.config.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrapErr(KindIo, "loading aws config", err)
	}

	d.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if d.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(d.config.Endpoint)
		}
		o.UsePathStyle = d.config.ForcePathStyle
	})
	return d.client, nil
}

func (d *S3TableDirectory) key(name string) string {
	prefix := strings.TrimSuffix(d.config.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (d *S3TableDirectory) Index() (*CatalogIndex, error) {
	ctx := context.Background()
	client, err := d.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	catalogObj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.config.Bucket),
		Key:    aws.String(d.key(catalogFileName)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, wrapErr(KindIo, "reading table catalog from s3", err)
	}
	defer catalogObj.Body.Close()

	data, err := io.ReadAll(catalogObj.Body)
	if err != nil {
		return nil, wrapErr(KindIo, "reading table catalog body", err)
	}
	var schema TableSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, wrapErr(KindConfigParsing, "parsing table catalog", err)
	}

	segments, err := d.listSegments(ctx, client)
	if err != nil {
		return nil, err
	}
	return &CatalogIndex{Schema: schema, Segments: segments}, nil
}

func (d *S3TableDirectory) listSegments(ctx context.Context, client *s3.Client) ([]SegmentInfo, error) {
	var infos []SegmentInfo
	prefix := d.key("")

	var continuationToken *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(d.config.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, wrapErr(KindIo, "listing table segments in s3", err)
		}
		for _, obj := range out.Contents {
			fileName := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			id, ok := segmentIDFromFileName(fileName)
			if !ok {
				continue
			}
			infos = append(infos, SegmentInfo{ID: id, Size: aws.ToInt64(obj.Size), FileName: fileName})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].FileName < infos[j].FileName })
	return infos, nil
}

func (d *S3TableDirectory) WriteCatalog(schema TableSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return wrapErr(KindConfigParsing, "serializing table catalog", err)
	}
	return d.putObject(catalogFileName, data)
}

func (d *S3TableDirectory) WriteSegment(fileName string, data []byte) (int64, error) {
	if err := d.putObject(fileName, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (d *S3TableDirectory) putObject(name string, data []byte) error {
	ctx := context.Background()
	client, err := d.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.config.Bucket),
		Key:    aws.String(d.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return wrapErr(KindIo, "writing object to s3", err)
	}
	return nil
}

// OpenSegment downloads a segment's bytes into memory and parses it
// in-place. S3 objects cannot be memory-mapped; the whole-object buffer
// stands in for the mapping, and Close is a no-op free of the buffer.
func (d *S3TableDirectory) OpenSegment(id int, fileName string) (*segment, error) {
	ctx := context.Background()
	client, err := d.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.config.Bucket),
		Key:    aws.String(d.key(fileName)),
	})
	if err != nil {
		return nil, wrapErr(KindIo, "reading segment from s3", err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, wrapErr(KindIo, "reading segment body", err)
	}

	return parseSegment(id, data)
}

func isS3NotFound(err error) bool {
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}
