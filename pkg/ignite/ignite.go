// Package ignite provides a high-performance key/value data store
// designed for fast read and write operations, inspired by Bitcask.
// It combines an in-memory hash table (KeyDir/Index) with an append-only log
// structure on disk to achieve high throughput. It is designed for applications
// requiring fast read and write operations, such as caching, session management,
// and real-time data processing, aiming to provide a simple, efficient, and
// reliable solution for persistent key/value storage in Go applications.
package ignite

import (
	"context"
	"time"

	"github.com/ignitedb/ignite/internal/engine"
	"github.com/ignitedb/ignite/pkg/logger"
	"github.com/ignitedb/ignite/pkg/options"
)

// Represents an instance of the Ignite key/value data store.
// It encapsulates the core engine responsible for data handling and
// the configuration options for this specific database instance.
//
// Instance is the primary entry point for interacting with the Ignite store,
// providing methods for setting, getting, and deleting key-value pairs.
type Instance struct {
	engine  *engine.Engine   // The underlying database engine handling read/write operations.
	options *options.Options // Configuration options applied to this DB instance.
}

// Creates and initializes a new Ignite DB instance.
func NewInstance(context context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	// Initialize a logger for the given service.
	log := logger.New(service)

	// Initialize default options.
	defaultOpts := options.NewDefaultOptions()

	// Apply any provided functional options to override defaults.
	if len(opts) > 0 {
		for _, opt := range opts {
			opt(&defaultOpts)
		}
	}

	// Create a new internal engine with the initialized logger.
	eng, err := engine.New(context, &engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// Set stores a key-value pair in the database.
// If the key already exists, its value will be updated.
// The operation is durable and will be written to the append-only log.
func (i *Instance) Set(context context.Context, key string, value []byte) error {
	return i.engine.Set(context, key, value)
}

// SetX stores a key-value pair with an expiration time.
// The entry will automatically be considered expired and inaccessible
// after the specified duration from the time of setting.
// If the key already exists, its value and expiry will be updated.
func (i *Instance) SetX(context context.Context, key string, value []byte, expiry time.Duration) error {
	return i.engine.SetX(context, key, value, expiry)
}

// Get retrieves the value associated with the given key.
func (i *Instance) Get(context context.Context, key string) ([]byte, error) {
	return i.engine.Get(context, key)
}

// Exists reports whether key currently has a live, unexpired value, without
// reading it from disk.
func (i *Instance) Exists(key string) bool {
	return i.engine.Exists(key)
}

// Len returns the number of live keys currently stored.
func (i *Instance) Len() int {
	return i.engine.Len()
}

// Delete removes a key-value pair from the database.
// The operation marks the key as deleted and will eventually be
// removed during compaction.
func (i *Instance) Delete(context context.Context, key string) error {
	return i.engine.Rm(context, key)
}

// Close gracefully shuts down the Ignite DB instance, releasing all
// associated resources, flushing any pending writes, and ensuring data
// durability.
func (i *Instance) Close(context context.Context) error {
	return i.engine.Close()
}
