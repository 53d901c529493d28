package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tis24dev/stackrestore/internal/logging"
)

// S3Options configures the S3 provider.
type S3Options struct {
	Location        string // s3://bucket/prefix
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3API is the subset of the S3 client used for listing and downloads.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

// S3 downloads archives from an S3-compatible bucket.
type S3 struct {
	bucket string
	prefix string
	client S3API
	logger *logging.Logger
}

// ParseS3Location splits "s3://bucket/prefix" into bucket and prefix.
func ParseS3Location(location string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(location), "s3://")
	if !ok {
		return "", "", fmt.Errorf("s3 location %q must start with s3://", location)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 location %q has no bucket", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3 builds an S3 client from opts. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, opts S3Options, logger *logging.Logger) (*S3, error) {
	bucket, prefix, err := ParseS3Location(opts.Location)
	if err != nil {
		return nil, err
	}

	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = opts.UsePathStyle
		})
	}
	return NewS3WithClient(bucket, prefix, s3.NewFromConfig(awsCfg, clientOpts...), logger), nil
}

// NewS3WithClient wires an existing client (used by tests).
func NewS3WithClient(bucket, prefix string, client S3API, logger *logging.Logger) *S3 {
	return &S3{bucket: bucket, prefix: strings.Trim(prefix, "/"), client: client, logger: logger}
}

// Name returns "s3".
func (p *S3) Name() string { return "s3" }

func (p *S3) key(name string) string {
	clean := path.Base(path.Clean("/" + name))
	if p.prefix == "" {
		return clean
	}
	return p.prefix + "/" + clean
}

// RemotePath returns "s3://bucket/prefix/name".
func (p *S3) RemotePath(name string) string {
	return "s3://" + p.bucket + "/" + p.key(name)
}

func (p *S3) fail(op, target string, err error) error {
	kind := classifyOutput(err.Error())
	var noKey *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	switch {
	case errors.As(err, &noKey), errors.As(err, &noBucket):
		kind = KindNotFound
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	}
	return &Error{Backend: p.Name(), Op: op, Target: target, Kind: kind, Err: err}
}

// List pages through the objects directly under the prefix.
func (p *S3) List(ctx context.Context) ([]Object, error) {
	listPrefix := ""
	if p.prefix != "" {
		listPrefix = p.prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(listPrefix),
		Delimiter: aws.String("/"),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, p.fail("list", "s3://"+p.bucket+"/"+listPrefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), listPrefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			o := Object{Name: name, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				o.ModTime = *obj.LastModified
			}
			objects = append(objects, o)
		}
	}
	p.logger.Debug("S3: %d object(s) under s3://%s/%s", len(objects), p.bucket, listPrefix)
	return objects, nil
}

// Download fetches remotePath (an s3:// reference) into localPath.
func (p *S3) Download(ctx context.Context, remotePath, localPath string) error {
	bucket, key, err := ParseS3Location(remotePath)
	if err != nil {
		return &Error{Backend: p.Name(), Op: "download", Target: remotePath, Kind: KindOther, Err: err}
	}
	if err := ensureParent(localPath); err != nil {
		return err
	}
	staged := partialPath(localPath)
	file, err := os.OpenFile(staged, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", staged, err)
	}

	downloader := manager.NewDownloader(p.client)
	n, dlErr := downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if closeErr := file.Close(); dlErr == nil && closeErr != nil {
		dlErr = closeErr
	}
	if dlErr != nil {
		dlErr = p.fail("download", remotePath, dlErr)
	} else {
		p.logger.Debug("S3: downloaded %d bytes from %s", n, remotePath)
	}
	return commitDownload(staged, localPath, dlErr)
}
