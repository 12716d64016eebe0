package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// table key attribute names; must match the dynamodbav tags in model
const (
	attrChatID    = "chatId"
	attrTimestamp = "timestamp"
)

// EnsureBucket creates the media bucket with public access blocked, default
// AES256 encryption and versioning enabled. An already-owned bucket is left
// as provisioned.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := aws.String(c.cfg.Bucket)

	_, err := c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: bucket})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			c.log.Warn(ctx, "bucket already exists", "bucket", c.cfg.Bucket)
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}

	_, err = c.s3.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: bucket,
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("block public access: %w", err)
	}

	_, err = c.s3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: bucket,
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{
				{
					ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
						SSEAlgorithm: s3types.ServerSideEncryptionAes256,
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("enable encryption: %w", err)
	}

	_, err = c.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: bucket,
		VersioningConfiguration: &s3types.VersioningConfiguration{
			Status: s3types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("enable versioning: %w", err)
	}

	c.log.Info(ctx, "bucket provisioned", "bucket", c.cfg.Bucket)
	return nil
}

// EnsureTable creates the message table keyed (chatId HASH, timestamp RANGE)
// and waits until it becomes ACTIVE. An existing table is left as is.
func (c *Client) EnsureTable(ctx context.Context) error {
	_, err := c.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.cfg.Table),
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(attrChatID), AttributeType: ddbtypes.ScalarAttributeTypeN},
			{AttributeName: aws.String(attrTimestamp), AttributeType: ddbtypes.ScalarAttributeTypeN},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(attrChatID), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(attrTimestamp), KeyType: ddbtypes.KeyTypeRange},
		},
		BillingMode: ddbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			c.log.Warn(ctx, "table already exists", "table", c.cfg.Table)
			return nil
		}
		return fmt.Errorf("create table: %w", err)
	}

	for {
		out, err := c.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(c.cfg.Table),
		})
		if err != nil {
			return fmt.Errorf("describe table: %w", err)
		}
		if out.Table.TableStatus == ddbtypes.TableStatusActive {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}

	c.log.Info(ctx, "table provisioned", "table", c.cfg.Table)
	return nil
}
