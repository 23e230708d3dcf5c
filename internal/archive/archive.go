// Package archive keeps the raw markup of every synced receipt in Cloud Storage
// under receipts/{memberId}/{receiptId}.html.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	objectPrefix  = "receipts"
	contentType   = "text/html; charset=utf-8"
	uploadTimeout = 2 * time.Minute
)

// Archive reads and writes receipt markup in a single bucket.
type Archive struct {
	client *storage.Client
	bucket string
}

// New creates an Archive for bucket. It assumes Application Default Credentials
// unless opts say otherwise.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Archive, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive.New: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive.New: create storage client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// ObjectName returns the object path for a receipt. Both ids are path-escaped
// so they always map to exactly one object.
func ObjectName(memberID, receiptID string) string {
	return path.Join(objectPrefix, url.PathEscape(memberID), url.PathEscape(receiptID)+".html")
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last path element of a gs:// URI.
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// Archive stores markup for the receipt and returns its gs:// URI.
// Writing the same receipt again replaces the object.
func (a *Archive) Archive(ctx context.Context, memberID, receiptID string, markup []byte) (string, error) {
	object := ObjectName(memberID, receiptID)
	if err := a.write(ctx, object, bytes.NewReader(markup)); err != nil {
		return "", fmt.Errorf("Archive: %w", err)
	}
	return URI(a.bucket, object), nil
}

// UploadFile copies a local markup file to the receipt's object.
func (a *Archive) UploadFile(ctx context.Context, memberID, receiptID, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	object := ObjectName(memberID, receiptID)
	if err := a.write(ctx, object, f); err != nil {
		return "", fmt.Errorf("UploadFile: %w", err)
	}
	return URI(a.bucket, object), nil
}

func (a *Archive) write(ctx context.Context, object string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload of %s: %w", object, err)
	}
	return nil
}

// Fetch downloads the object at a gs:// URI. The bucket in the URI may differ
// from the archive's own bucket.
func (a *Archive) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := a.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// FetchReceipt downloads the archived markup of one receipt.
func (a *Archive) FetchReceipt(ctx context.Context, memberID, receiptID string) ([]byte, error) {
	return a.Fetch(ctx, URI(a.bucket, ObjectName(memberID, receiptID)))
}

// Close releases the storage client.
func (a *Archive) Close() error {
	return a.client.Close()
}
