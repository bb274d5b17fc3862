package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"bloodlink/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
)

// BlobStore keeps prescriptions and profile pictures in a single S3 bucket.
// Objects are private; readers get short-lived presigned URLs.
type BlobStore struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	maxBytes   int64
}

func NewBlobStore(client *s3.Client, bucket string, presignTTL time.Duration, maxBytes int64) *BlobStore {
	return &BlobStore{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     bucket,
		presignTTL: presignTTL,
		maxBytes:   maxBytes,
	}
}

// Upload is a sniffed, size checked file ready to store.
type Upload struct {
	Body        []byte
	ContentType string
	Extension   string
}

// ReadUpload reads at most maxBytes from r and checks its content type
// against types.AllowedUploadMimeTypes by sniffing the bytes rather than
// trusting the client's header.
func ReadUpload(r io.Reader, maxBytes int64) (*Upload, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes: %w", maxBytes, types.ErrInvalidInput)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("upload is empty: %w", types.ErrInvalidInput)
	}

	detected := mimetype.Detect(body)
	for mime, ext := range types.AllowedUploadMimeTypes {
		if detected.Is(mime) {
			return &Upload{Body: body, ContentType: mime, Extension: ext}, nil
		}
	}

	return nil, fmt.Errorf("unsupported upload type %s: %w", detected.String(), types.ErrInvalidInput)
}

func (b *BlobStore) MaxBytes() int64 {
	return b.maxBytes
}

func (b *BlobStore) Put(ctx context.Context, key string, upload *Upload) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(upload.Body),
		ContentType:   aws.String(upload.ContentType),
		ContentLength: aws.Int64(int64(len(upload.Body))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return nil
}

func (b *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

func (b *BlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := b.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", key, err)
	}

	return req.URL, nil
}
