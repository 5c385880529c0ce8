package minio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

const (
	contractPrefix   = "contracts"
	extractionPrefix = "extractions"
)

// ArchivedObject describes one stored object.
type ArchivedObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Archive stores contract text by content hash and extraction payloads by
// time, both under the contract id.
type Archive struct {
	client *Client
	logger logging.Logger
	now    func() time.Time
}

// NewArchive builds an Archive over client.
func NewArchive(client *Client, log logging.Logger) *Archive {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Archive{client: client, logger: log.Named("archive"), now: time.Now}
}

// ContractKey is the object key for a contract text.
func ContractKey(contractID string, text []byte) string {
	sum := sha256.Sum256(text)
	return path.Join(contractPrefix, contractID, hex.EncodeToString(sum[:8])+".txt")
}

// PutContract stores text unless an identical copy is already archived.
func (a *Archive) PutContract(ctx context.Context, contractID string, text []byte) (string, error) {
	if contractID == "" {
		return "", errors.InvalidParam("contract id is required")
	}
	key := ContractKey(contractID, text)
	exists, err := a.exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}
	return key, a.put(ctx, key, text, "text/plain; charset=utf-8", contractID)
}

// PutExtraction stores a raw model payload.
func (a *Archive) PutExtraction(ctx context.Context, contractID string, payload []byte) (string, error) {
	if contractID == "" {
		return "", errors.InvalidParam("contract id is required")
	}
	key := path.Join(extractionPrefix, contractID, a.now().UTC().Format("20060102T150405.000Z")+".json")
	return key, a.put(ctx, key, payload, "application/json", contractID)
}

// List returns the objects archived for a contract, contracts first.
func (a *Archive) List(ctx context.Context, contractID string) ([]ArchivedObject, error) {
	if contractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	var out []ArchivedObject
	for _, prefix := range []string{contractPrefix, extractionPrefix} {
		opts := minio.ListObjectsOptions{Prefix: path.Join(prefix, contractID) + "/", Recursive: true}
		for obj := range a.client.api.ListObjects(ctx, a.client.bucket, opts) {
			if obj.Err != nil {
				return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "failed to list archive")
			}
			out = append(out, ArchivedObject{Key: obj.Key, Size: obj.Size, ETag: obj.ETag, LastModified: obj.LastModified})
		}
	}
	return out, nil
}

func (a *Archive) put(ctx context.Context, key string, data []byte, contentType, contractID string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"contract-id": contractID},
	}
	info, err := a.client.api.PutObject(ctx, a.client.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "upload failed")
	}
	a.logger.Debug("archived object",
		logging.String("key", key),
		logging.Int64("size", info.Size))
	return nil
}

func (a *Archive) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.api.StatObject(ctx, a.client.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeStorageError, "failed to stat object")
}
