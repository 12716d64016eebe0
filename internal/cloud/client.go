// Package cloud is the archival sink: media goes to object storage, one
// deduplicated structured record per message goes to the key-value table.
//
// Durability lives entirely in the two external services; this package holds
// no state beyond in-flight transfers. Media upload completes (or fails)
// before the structured record referencing its key is written.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/tgsearcher/internal/common"
	"github.com/dmitrijs2005/tgsearcher/internal/logging"
	"github.com/dmitrijs2005/tgsearcher/internal/model"
)

type Config struct {
	Region       string
	Bucket       string
	Table        string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// the SDK surface the client consumes; tests substitute fakes
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutPublicAccessBlock(ctx context.Context, in *s3.PutPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error)
	PutBucketEncryption(ctx context.Context, in *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error)
	PutBucketVersioning(ctx context.Context, in *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Client struct {
	cfg     Config
	log     logging.Logger
	s3      s3API
	presign s3Presigner
	db      dynamoAPI
}

// NewClient builds the archival client. With empty AccessKey the default AWS
// credential chain applies; BaseEndpoint switches both services to an
// S3-compatible/local endpoint (path-style addressing for s3).
func NewClient(ctx context.Context, cfg Config, log logging.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	s3c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	dbc := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &Client{
		cfg:     cfg,
		log:     log.With("component", "cloud"),
		s3:      s3c,
		presign: s3.NewPresignClient(s3c),
		db:      dbc,
	}, nil
}

// UploadMedia stores the reader's content under <scopePrefix>/<fileName> and
// returns the object key. Same key silently replaces the prior object; the
// caller decides any retry policy.
func (c *Client) UploadMedia(ctx context.Context, r io.Reader, scopePrefix, fileName string) (string, error) {
	key := fmt.Sprintf("%s/%s", scopePrefix, fileName)

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", common.ErrorTransfer, key, err)
	}

	return key, nil
}

// UploadMediaFile is UploadMedia for content already on disk.
func (c *Client) UploadMediaFile(ctx context.Context, path, scopePrefix, fileName string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrorTransfer, path, err)
	}
	defer f.Close()
	return c.UploadMedia(ctx, f, scopePrefix, fileName)
}

// PutRecord writes one archived message. Unless overwrite is set, the write
// is conditional on the primary key (chatId, timestamp) not existing yet and
// a duplicate surfaces common.ErrorDuplicateRecord with no side effects.
// The guard attribute names must equal the record's emitted attribute names.
func (c *Client) PutRecord(ctx context.Context, msg *model.ArchivedMessage, overwrite bool) error {
	item, err := attributevalue.MarshalMap(msg)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName: aws.String(c.cfg.Table),
		Item:      item,
	}
	if !overwrite {
		in.ConditionExpression = aws.String("attribute_not_exists(chatId) AND attribute_not_exists(#ts)")
		in.ExpressionAttributeNames = map[string]string{"#ts": "timestamp"}
	}

	if _, err := c.db.PutItem(ctx, in); err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: chat %d message %d", common.ErrorDuplicateRecord, msg.ChatID, msg.MessageID)
		}
		return fmt.Errorf("%w: put record: %v", common.ErrorTransfer, err)
	}

	return nil
}

// MessageExists is the dedup pre-check: keyed lookup by (chatId, messageId).
// Reads are eventually consistent; the conditional write in PutRecord is the
// second guard.
func (c *Client) MessageExists(ctx context.Context, chatID, messageID int64) (bool, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.cfg.Table),
		KeyConditionExpression: aws.String("chatId = :c"),
		FilterExpression:       aws.String("messageId = :m"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":c": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(chatID, 10)},
			":m": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(messageID, 10)},
		},
		Select: ddbtypes.SelectCount,
	}

	for {
		out, err := c.db.Query(ctx, in)
		if err != nil {
			return false, fmt.Errorf("%w: query record: %v", common.ErrorTransfer, err)
		}
		if out.Count > 0 {
			return true, nil
		}
		if out.LastEvaluatedKey == nil {
			return false, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// PresignedGetURL produces a time-limited retrieval URL for an object key
// previously returned by UploadMedia.
func (c *Client) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", common.ErrorTransfer, key, err)
	}

	return req.URL, nil
}
