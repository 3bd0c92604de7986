package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"bulkmerge/core/storage"

	"github.com/minio/minio-go/v7"
)

// Stdio is the location that reads stdin and writes stdout.
const Stdio = "-"

// Store reads and writes record files on local disk or in object storage.
// Locations are file paths, "-" for stdio, or s3://bucket/key. An s3 key
// ending in "/" reads every .json object under that prefix in key order.
type Store struct {
	client storage.Client
	region string
	stdin  io.Reader
	stdout io.Writer
}

// NewStore creates a store. client may be nil when no s3 locations are used.
func NewStore(client storage.Client, region string) *Store {
	return &Store{client: client, region: region, stdin: os.Stdin, stdout: os.Stdout}
}

// Read loads the rows at location.
func (s *Store) Read(ctx context.Context, location string) ([]Row, error) {
	if bucket, key, ok := storage.ParseURI(location); ok {
		if s.client == nil {
			return nil, fmt.Errorf("no object storage configured for %s", location)
		}
		if key == "" || strings.HasSuffix(key, "/") {
			return s.readPrefix(ctx, bucket, key)
		}
		return s.readObject(ctx, bucket, key)
	}

	if location == Stdio {
		return Decode(s.stdin)
	}

	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	defer f.Close()

	rows, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", location, err)
	}
	return rows, nil
}

func (s *Store) readObject(ctx context.Context, bucket, key string) ([]Row, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	rows, err := Decode(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to decode s3://%s/%s: %w", bucket, key, err)
	}
	return rows, nil
}

func (s *Store) readPrefix(ctx context.Context, bucket, prefix string) ([]Row, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, obj.Err)
		}
		if path.Ext(obj.Key) == ".json" {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)

	var rows []Row
	for _, key := range keys {
		part, err := s.readObject(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}
	return rows, nil
}

// Write stores rows at location, creating the bucket for s3 locations.
func (s *Store) Write(ctx context.Context, location string, rows []Row) error {
	var buf bytes.Buffer
	if err := Encode(&buf, rows); err != nil {
		return err
	}

	if bucket, key, ok := storage.ParseURI(location); ok {
		if s.client == nil {
			return fmt.Errorf("no object storage configured for %s", location)
		}
		if key == "" || strings.HasSuffix(key, "/") {
			return fmt.Errorf("cannot write records to prefix %s", location)
		}
		if err := storage.EnsureBucket(ctx, s.client, bucket, s.region); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", location, err)
		}
		return nil
	}

	if location == Stdio {
		_, err := s.stdout.Write(buf.Bytes())
		return err
	}

	if err := os.WriteFile(location, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	return nil
}

// Decode reads a JSON array of objects. Numbers become int64 when integral,
// float64 otherwise.
func Decode(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	Normalize(rows)
	return rows, nil
}

// Encode writes rows as an indented JSON array.
func Encode(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}
