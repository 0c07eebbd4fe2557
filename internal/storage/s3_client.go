package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	huddle_errors "huddle-chat/pkg/errors"
)

const MaxAvatarBytes = 5 << 20

var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	ACL        string
	PresignTTL time.Duration
}

// Upload is a presigned avatar upload. The client PUTs the file to URL with
// Headers, then reports Key back so the avatar can be attached to the user.
type Upload struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Key       string            `json:"key"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

type Client struct {
	cfg     S3Config
	acl     types.ObjectCannedACL
	s3      *s3.Client
	presign *s3.PresignClient
}

func NewClient(ctx context.Context, cfg S3Config) (*Client, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}
	acl, err := validateACL(cfg.ACL)
	if err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if parsed, err := url.Parse(endpoint); err == nil {
				endpoint = parsed.String()
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		cfg:     cfg,
		acl:     acl,
		s3:      s3Client,
		presign: s3.NewPresignClient(s3Client),
	}, nil
}

// AvatarKey returns a fresh object key for an avatar of userID.
func AvatarKey(userID, contentType string) (string, error) {
	ext, err := avatarExtension(contentType)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("avatar owner: %w", huddle_errors.ErrInvalidInput)
	}
	return "avatars/" + userID + "/" + uuid.NewString() + ext, nil
}

func (c *Client) PresignAvatarUpload(ctx context.Context, userID, contentType string, sizeBytes int64) (Upload, error) {
	if sizeBytes > MaxAvatarBytes {
		return Upload{}, fmt.Errorf("avatar of %d bytes: %w", sizeBytes, huddle_errors.ErrTooLarge)
	}
	key, err := AvatarKey(userID, contentType)
	if err != nil {
		return Upload{}, err
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if sizeBytes > 0 {
		input.ContentLength = aws.Int64(sizeBytes)
	}

	ttl := c.cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	presigned, err := c.presign.PresignPutObject(ctx, input, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return Upload{}, err
	}

	headers := map[string]string{"Content-Type": contentType}
	if sizeBytes > 0 {
		headers["Content-Length"] = strconv.FormatInt(sizeBytes, 10)
	}

	return Upload{
		URL:       presigned.URL,
		Method:    presigned.Method,
		Headers:   headers,
		Key:       key,
		PublicURL: c.FileURL(key),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// PutAvatar uploads an avatar through the server and returns its public URL.
func (c *Client) PutAvatar(ctx context.Context, userID, contentType string, body io.Reader) (string, error) {
	key, err := AvatarKey(userID, contentType)
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxAvatarBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxAvatarBytes {
		return "", fmt.Errorf("avatar upload: %w", huddle_errors.ErrTooLarge)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty avatar: %w", huddle_errors.ErrInvalidInput)
	}

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		ACL:           c.acl,
		Body:          bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("put avatar %s: %w", key, err)
	}
	return c.FileURL(key), nil
}

// OwnsKey reports whether key is an avatar key of userID.
func OwnsKey(userID, key string) bool {
	return userID != "" && strings.HasPrefix(key, "avatars/"+userID+"/") && !strings.Contains(key, "..")
}

func (c *Client) FileURL(key string) string {
	if c == nil || key == "" {
		return ""
	}
	if c.cfg.PublicBase != "" {
		return strings.TrimSuffix(c.cfg.PublicBase, "/") + "/" + key
	}
	return ""
}

func avatarExtension(contentType string) (string, error) {
	if contentType == "" {
		return "", fmt.Errorf("content type is required: %w", huddle_errors.ErrInvalidInput)
	}
	ext, ok := avatarTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("content type %q: %w", contentType, huddle_errors.ErrInvalidInput)
	}
	return ext, nil
}

func validateACL(acl string) (types.ObjectCannedACL, error) {
	switch acl {
	case "":
		return "", nil
	case "private":
		return types.ObjectCannedACLPrivate, nil
	case "public-read":
		return types.ObjectCannedACLPublicRead, nil
	default:
		return "", errors.New("invalid acl")
	}
}
