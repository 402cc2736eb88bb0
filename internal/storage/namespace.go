package storage

import (
	"context"
	"strings"
)

type namespaced struct {
	inner  Store
	prefix string
}

// Namespace scopes every key of inner under ns, so devices sharing one
// backing store never see each other's snapshots.
func Namespace(inner Store, ns string) Store {
	return &namespaced{inner: inner, prefix: "device:" + ns + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *namespaced) Watch(ctx context.Context, key string) (<-chan Change, error) {
	src, err := n.inner.Watch(ctx, n.prefix+key)
	if err != nil {
		return nil, err
	}

	out := make(chan Change, 1)
	go func() {
		defer close(out)
		for change := range src {
			change.Key = strings.TrimPrefix(change.Key, n.prefix)
			offer(out, change)
		}
	}()
	return out, nil
}
