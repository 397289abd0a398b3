// Package objectstore is the bucket surface of the object gateway used by the
// bucket scenarios.
package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Client manages buckets and their tags on an object gateway
type Client interface {
	CreateBucket(ctx context.Context, name string) error
	PutBucketTags(ctx context.Context, name string, tags map[string]string) error
	GetBucketTags(ctx context.Context, name string) (map[string]string, error)
	DeleteBucket(ctx context.Context, name string) error
}

// BucketNames returns count bucket names derived from the prefix
func BucketNames(prefix string, count int) []string {
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		names = append(names, fmt.Sprintf("%s-%d", prefix, i))
	}
	return names
}

// Fake is an in-memory Client, used by tests
type Fake struct {
	mu      sync.Mutex
	buckets map[string]map[string]string
	// Fail makes every call on the named bucket return the error
	Fail map[string]error
}

// NewFake returns an empty Fake
func NewFake() *Fake {
	return &Fake{buckets: map[string]map[string]string{}, Fail: map[string]error{}}
}

func (f *Fake) CreateBucket(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[name]; err != nil {
		return err
	}
	if _, ok := f.buckets[name]; !ok {
		f.buckets[name] = map[string]string{}
	}
	return nil
}

func (f *Fake) PutBucketTags(ctx context.Context, name string, tags map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[name]; err != nil {
		return err
	}
	if _, ok := f.buckets[name]; !ok {
		return fmt.Errorf("NoSuchBucket: %s", name)
	}
	copied := map[string]string{}
	for k, v := range tags {
		copied[k] = v
	}
	f.buckets[name] = copied
	return nil
}

func (f *Fake) GetBucketTags(ctx context.Context, name string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[name]; err != nil {
		return nil, err
	}
	tags, ok := f.buckets[name]
	if !ok {
		return nil, fmt.Errorf("NoSuchBucket: %s", name)
	}
	copied := map[string]string{}
	for k, v := range tags {
		copied[k] = v
	}
	return copied, nil
}

func (f *Fake) DeleteBucket(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.buckets, name)
	return nil
}

// Buckets lists the existing buckets
func (f *Fake) Buckets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
