package metrics

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/joshu-sajeev/previewq/internal/blob"
)

type InstrumentedStorage struct {
	blob.Storage
}

func NewInstrumentedStorage(s blob.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

var _ blob.Storage = (*InstrumentedStorage)(nil)

func (s *InstrumentedStorage) Put(ctx context.Context, key string, localPath string) error {
	start := time.Now()

	err := s.Storage.Put(ctx, key, localPath)

	observe("put", start, err)
	if err == nil {
		if info, statErr := os.Stat(localPath); statErr == nil {
			StorageBytesTotal.WithLabelValues("put").Add(float64(info.Size()))
		}
	}

	return err
}

func (s *InstrumentedStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()

	reader, err := s.Storage.Get(ctx, key)

	observe("get", start, err)
	if err != nil {
		return nil, err
	}

	return &instrumentedReadCloser{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := s.Storage.Exists(ctx, key)
	observe("exists", start, err)
	return exists, err
}

func observe(op string, start time.Time, err error) {
	StorageOperationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

type instrumentedReadCloser struct {
	io.ReadCloser
	bytesRead int64
}

func (r *instrumentedReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

func (r *instrumentedReadCloser) Close() error {
	StorageBytesTotal.WithLabelValues("get").Add(float64(r.bytesRead))
	return r.ReadCloser.Close()
}
