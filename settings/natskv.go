package settings

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	pkgerrors "github.com/Chatshop-Plugin/chatshop-sub001/errors"
)

// KVOptions configures KVStore operation behavior
type KVOptions struct {
	Timeout      time.Duration // Per-operation timeout
	MaxValueSize int           // Maximum size for values
}

// DefaultKVOptions returns sensible defaults for settings persistence
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024, // 1MB
	}
}

// KVStore persists settings in a NATS JetStream KeyValue bucket. It is the
// production Store implementation: the host points it at a shared bucket
// (e.g. "chatshop_settings") so toggle state survives restarts.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore creates a settings store backed by the given KV bucket
func NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &KVStore{
		bucket:  bucket,
		options: options,
	}
}

// WithTimeout overrides the per-operation timeout
func WithTimeout(d time.Duration) func(*KVOptions) {
	return func(o *KVOptions) {
		o.Timeout = d
	}
}

// opContext returns a bounded context for a single KV operation
func (kv *KVStore) opContext() (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(context.Background(), kv.options.Timeout)
	}
	return context.Background(), func() {}
}

// Get returns the stored value for key, if any
func (kv *KVStore) Get(key string) ([]byte, bool, error) {
	ctx, cancel := kv.opContext()
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.WrapTransient(err, "KVStore", "Get", "kv read")
	}

	return entry.Value(), true, nil
}

// Put stores value under key, replacing any previous value
func (kv *KVStore) Put(key string, value []byte) error {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return pkgerrors.WrapInvalid(
			pkgerrors.ErrInvalidDescriptor, "KVStore", "Put", "value size validation")
	}

	ctx, cancel := kv.opContext()
	defer cancel()

	if _, err := kv.bucket.Put(ctx, key, value); err != nil {
		return pkgerrors.WrapTransient(err, "KVStore", "Put", "kv write")
	}
	return nil
}

// Delete removes key from the store; deleting an absent key is not an error
func (kv *KVStore) Delete(key string) error {
	ctx, cancel := kv.opContext()
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return pkgerrors.WrapTransient(err, "KVStore", "Delete", "kv delete")
	}
	return nil
}
