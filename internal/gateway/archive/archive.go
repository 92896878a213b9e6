// Package archive ships gzipped request records to an S3-compatible object
// store. Archiving is strictly best-effort: it runs after the response has
// been sent and failures are only logged.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// Record is one archived request/response pair with its billing outcome.
type Record struct {
	RequestID    string          `json:"request_id"`
	TeamID       string          `json:"team_id"`
	Model        string          `json:"model"`
	Provider     string          `json:"provider"`
	LatencyMs    int64           `json:"latency_ms"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	CostUSD      float64         `json:"cost_usd"`
	Request      json.RawMessage `json:"request,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Archiver writes records to a bucket.
type Archiver struct {
	client *minio.Client
	bucket string
}

// New builds an archiver against an S3-compatible endpoint.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Store uploads one record.
func (a *Archiver) Store(ctx context.Context, rec Record) error {
	payload, key, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("archive put: %w", err)
	}
	return nil
}

// StoreAsync uploads rec in the background with its own deadline, logging
// failures instead of reporting them.
func (a *Archiver) StoreAsync(rec Record) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Store(ctx, rec); err != nil {
			log.WithError(err).WithField("request_id", rec.RequestID).Warn("request archive failed")
		}
	}()
}

// encodeRecord gzips the JSON form of rec and derives its object key. Keys
// shard by UTC day so bucket lifecycle rules can expire old prefixes.
func encodeRecord(rec Record) ([]byte, string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, "", fmt.Errorf("encode archive record: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("compress archive record: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress archive record: %w", err)
	}

	key := fmt.Sprintf("requests/%s/%s.json.gz", rec.CreatedAt.UTC().Format("2006/01/02"), rec.RequestID)
	return buf.Bytes(), key, nil
}
