package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// multipartThreshold is the payload size above which archive uploads switch
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// uploader is the slice of Writer the archiver needs.
type uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Archiver implements domain.Archiver by querying the audit stores for old
// records, serializing them to JSONL, and uploading the result to object
// storage.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here. That is a separate, explicit step to be executed after the
// archive has been verified.
type Archiver struct {
	writer   uploader
	activity domain.ActivityStore
	equity   domain.EquityStore
}

// NewArchiver creates an Archiver that exports from the given stores.
func NewArchiver(writer *Writer, activity domain.ActivityStore, equity domain.EquityStore) *Archiver {
	return &Archiver{
		writer:   writer,
		activity: activity,
		equity:   equity,
	}
}

// ArchiveActivity exports all activity records created before the cutoff to
// archive/activity/YYYY-MM.jsonl and returns how many were exported.
func (a *Archiver) ArchiveActivity(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.activity.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity marshal: %w", err)
	}

	if err := a.upload(ctx, archivePath("activity", before), buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive activity upload: %w", err)
	}
	return int64(len(records)), nil
}

// ArchiveEquity exports all equity samples created before the cutoff to
// archive/equity/YYYY-MM.jsonl and returns how many were exported.
func (a *Archiver) ArchiveEquity(ctx context.Context, before time.Time) (int64, error) {
	points, err := a.equity.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive equity query: %w", err)
	}
	if len(points) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(points)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive equity marshal: %w", err)
	}

	if err := a.upload(ctx, archivePath("equity", before), buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive equity upload: %w", err)
	}
	return int64(len(points)), nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	const contentType = "application/x-ndjson"
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), contentType, minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), contentType)
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/activity/2026-08.jsonl
//	archive/equity/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON. Each
// element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
