package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/nsbus/pkg/store"
)

// SnapshotStore builds the configured snapshot backend. It returns nil for
// the none backend.
func (c *Config) SnapshotStore(ctx context.Context) (store.SnapshotStore, error) {
	switch c.Snapshot.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendS3:
		client, err := c.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewS3Store(client, c.Snapshot.Bucket, c.Snapshot.Prefix), nil
	default:
		return nil, fmt.Errorf("config: unknown snapshot backend %q", c.Snapshot.Backend)
	}
}

// s3Client loads the shared AWS configuration (environment, profiles, SSO,
// instance metadata) and applies the snapshot section on top.
func (c *Config) s3Client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if c.Snapshot.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(c.Snapshot.Region))
	}
	if c.Snapshot.Anonymous {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("config: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = c.Snapshot.PathStyle
		if c.Snapshot.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Snapshot.Endpoint)
		}
	}), nil
}
