package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/nounverb/nounverb/pkg/verrors"
)

// maxConcurrentObjectOps bounds batched GET/PUT fan-out per §4.7.
const maxConcurrentObjectOps = 50

// S3Client abstracts the subset of the S3 API the backend needs, so tests
// can supply a fake without pulling in a real client.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend implements Backend over an S3-compatible object store, using
// the same key layout as the filesystem flavor.
type S3Backend struct {
	client S3Client
	bucket string
	prefix string

	mu        sync.Mutex
	changeLog []ChangeRecord // in-memory mirror; AppendChange also PUTs the object
}

// NewS3Backend creates an object-store-backed Backend. The client should be
// pre-configured with credentials, region, and endpoint.
func NewS3Backend(client S3Client, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Backend) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *S3Backend) Init(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return verrors.StorageTransient(fmt.Errorf("head bucket %s: %w", s.bucket, err))
	}
	return nil
}

func (s *S3Backend) get(ctx context.Context, path string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, false, nil
		}
		return nil, false, verrors.StorageTransient(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, verrors.StorageTransient(err)
	}
	return data, true, nil
}

func (s *S3Backend) put(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return verrors.StorageTransient(err)
	}
	return nil
}

func (s *S3Backend) del(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return verrors.StorageTransient(err)
	}
	return nil
}

// list returns the id suffixes of every object under prefix (keys with the
// prefix stripped), using ListObjectsV2 pagination.
func (s *S3Backend) list(ctx context.Context, prefix string) ([]string, error) {
	var ids []string
	var token *string
	full := s.key(prefix)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, verrors.StorageTransient(err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			ids = append(ids, strings.TrimPrefix(key, full))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(ids)
	return ids, nil
}

// getMany fetches every id under dataPrefix with up to maxConcurrentObjectOps
// GETs in flight at once.
func (s *S3Backend) getMany(ctx context.Context, dataPrefix string, ids []string) ([]Record, error) {
	out := make([]Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentObjectOps)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			data, ok, err := s.get(gctx, dataPrefix+id)
			if err != nil {
				return err
			}
			if ok {
				out[i] = Record{ID: id, Data: data}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	filtered := out[:0]
	for _, r := range out {
		if r.ID != "" {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func (s *S3Backend) SaveNoun(ctx context.Context, id, kind string, data []byte) error {
	if err := s.put(ctx, prefixNoun+id, data); err != nil {
		return err
	}
	if kind != "" {
		return s.put(ctx, prefixByKind+kind+"/"+id, nil)
	}
	return nil
}

func (s *S3Backend) GetNoun(ctx context.Context, id string) ([]byte, bool, error) {
	return s.get(ctx, prefixNoun+id)
}

func (s *S3Backend) GetAllNouns(ctx context.Context) ([]Record, error) {
	ids, err := s.list(ctx, prefixNoun)
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixNoun, ids)
}

func (s *S3Backend) GetNounsByKind(ctx context.Context, kind string) ([]Record, error) {
	ids, err := s.list(ctx, prefixByKind+kind+"/")
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixNoun, ids)
}

func (s *S3Backend) DeleteNoun(ctx context.Context, id string) error {
	// best-effort: the kind index key isn't known without a read; callers
	// that track kind locally (pkg/graph does) should also issue an index
	// cleanup, same as the filesystem flavor does implicitly via scan.
	return s.del(ctx, prefixNoun+id)
}

func (s *S3Backend) SaveVerb(ctx context.Context, id, source, target, kind string, data []byte) error {
	if err := s.put(ctx, prefixVerb+id, data); err != nil {
		return err
	}
	if err := s.put(ctx, prefixVerbsBySource+source+"/"+id, nil); err != nil {
		return err
	}
	if err := s.put(ctx, prefixVerbsByTarget+target+"/"+id, nil); err != nil {
		return err
	}
	if kind != "" {
		return s.put(ctx, prefixVerbsByKind+kind+"/"+id, nil)
	}
	return nil
}

func (s *S3Backend) GetVerb(ctx context.Context, id string) ([]byte, bool, error) {
	return s.get(ctx, prefixVerb+id)
}

func (s *S3Backend) GetAllVerbs(ctx context.Context) ([]Record, error) {
	ids, err := s.list(ctx, prefixVerb)
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixVerb, ids)
}

func (s *S3Backend) GetVerbsBySource(ctx context.Context, source string) ([]Record, error) {
	ids, err := s.list(ctx, prefixVerbsBySource+source+"/")
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixVerb, ids)
}

func (s *S3Backend) GetVerbsByTarget(ctx context.Context, target string) ([]Record, error) {
	ids, err := s.list(ctx, prefixVerbsByTarget+target+"/")
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixVerb, ids)
}

func (s *S3Backend) GetVerbsByKind(ctx context.Context, kind string) ([]Record, error) {
	ids, err := s.list(ctx, prefixVerbsByKind+kind+"/")
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, prefixVerb, ids)
}

func (s *S3Backend) DeleteVerb(ctx context.Context, id string) error {
	return s.del(ctx, prefixVerb+id)
}

func (s *S3Backend) SaveMetadata(ctx context.Context, id string, data []byte) error {
	return s.put(ctx, prefixMetadata+id, data)
}

func (s *S3Backend) GetMetadata(ctx context.Context, id string) ([]byte, bool, error) {
	return s.get(ctx, prefixMetadata+id)
}

func (s *S3Backend) Clear(ctx context.Context) error {
	for _, p := range []string{prefixNoun, prefixVerb, prefixMetadata, prefixByKind, prefixVerbsBySource, prefixVerbsByTarget, prefixVerbsByKind, prefixChangelog} {
		ids, err := s.list(ctx, p)
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentObjectOps)
		for _, id := range ids {
			id := id
			g.Go(func() error { return s.del(gctx, p+id) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3Backend) GetStatus(ctx context.Context) (Status, error) {
	return Status{BackendKind: "s3", BytesUsed: -1, BytesQuota: -1, Extra: map[string]string{"bucket": s.bucket}}, nil
}

func (s *S3Backend) SupportsChangeLog() bool { return true }

func (s *S3Backend) AppendChange(ctx context.Context, rec ChangeRecord) error {
	key := fmt.Sprintf("%s%020d-%020d", prefixChangelog, rec.Timestamp, rec.Seq)
	if err := s.put(ctx, key, encodeChangeRecord(rec)); err != nil {
		return err
	}
	s.mu.Lock()
	s.changeLog = append(s.changeLog, rec)
	s.mu.Unlock()
	return nil
}

func (s *S3Backend) GetChangesSince(ctx context.Context, timestamp int64, limit int) ([]ChangeRecord, error) {
	ids, err := s.list(ctx, prefixChangelog)
	if err != nil {
		return nil, err
	}
	records, err := s.getMany(ctx, prefixChangelog, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	out := make([]ChangeRecord, 0, len(records))
	for _, r := range records {
		rec, err := decodeChangeRecord(r.Data)
		if err != nil {
			continue
		}
		if rec.Timestamp > timestamp {
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *S3Backend) FlushStatistics(ctx context.Context, data []byte) error {
	return s.put(ctx, keyStats, data)
}

func (s *S3Backend) Close() error { return nil }

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
