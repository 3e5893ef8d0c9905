package snapshotstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/resilience"
)

// s3RetryConfig governs retries of the network round-trips to S3: put/get
// can fail transiently under throttling.
func s3RetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 4
	return cfg
}

// ArchivedOrder is what gets written to S3 when an order reaches Done or
// Aborted: a durable, queryable copy that outlives the in-memory GC.
type ArchivedOrder struct {
	Order      tm2pc.Order      `json:"order"`
	TaskEvents []tm2pc.TaskEvent `json:"taskEvents"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

// Archiver writes terminal (Done or Aborted) orders to S3,
// gzip-compressed, grouped under a date prefix so an operator can browse
// or bulk-restore a day's worth of closed orders.
type Archiver struct {
	client *s3.S3
	bucket string
	index  *ArchiveIndex
}

func NewArchiver(client *s3.S3, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

// WithIndex attaches an ArchiveIndex; once set, every successful Archive
// call also records its S3 key in the index table.
func (a *Archiver) WithIndex(idx *ArchiveIndex) *Archiver {
	a.index = idx
	return a
}

func (a *Archiver) key(toid tm2pc.Toid, at time.Time) string {
	return fmt.Sprintf("orders/%s/%d.json.gz", at.Format("2006-01-02"), toid)
}

func (a *Archiver) Archive(ctx context.Context, order tm2pc.Order, events []tm2pc.TaskEvent) error {
	archived := ArchivedOrder{Order: order, TaskEvents: events, ArchivedAt: time.Now()}
	data, err := json.Marshal(archived)
	if err != nil {
		return fmt.Errorf("snapshotstore: marshal archived order: %w", err)
	}

	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("snapshotstore: compress archived order: %w", err)
	}

	key := a.key(order.Toid, archived.ArchivedAt)
	err = resilience.Retry(ctx, s3RetryConfig(), func() error {
		_, putErr := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(compressed),
		})
		return putErr
	})
	if err != nil {
		return fmt.Errorf("snapshotstore: upload archived order: %w", err)
	}

	if a.index != nil {
		if err := a.index.Record(ctx, order.Toid, key, archived.ArchivedAt); err != nil {
			return fmt.Errorf("snapshotstore: record archive index: %w", err)
		}
	}
	return nil
}

// Restore fetches a previously archived order back from S3. date must
// match the day it was archived under (the key's date prefix).
func (a *Archiver) Restore(ctx context.Context, toid tm2pc.Toid, date string) (ArchivedOrder, error) {
	key := fmt.Sprintf("orders/%s/%d.json.gz", date, toid)
	compressed, err := resilience.RetryWithResult(ctx, s3RetryConfig(), func() ([]byte, error) {
		result, getErr := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		})
		if getErr != nil {
			return nil, getErr
		}
		defer result.Body.Close()
		return io.ReadAll(result.Body)
	})
	if err != nil {
		return ArchivedOrder{}, fmt.Errorf("snapshotstore: download archived order: %w", err)
	}

	data, err := gzipDecompress(compressed)
	if err != nil {
		return ArchivedOrder{}, fmt.Errorf("snapshotstore: decompress archived order: %w", err)
	}

	var archived ArchivedOrder
	if err := json.Unmarshal(data, &archived); err != nil {
		return ArchivedOrder{}, fmt.Errorf("snapshotstore: unmarshal archived order: %w", err)
	}
	return archived, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
