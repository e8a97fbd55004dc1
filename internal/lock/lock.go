package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrLockTimeout = errors.New("could not acquire stock lock, try again later")

// Locker serializes work on a set of keys. Keys are always taken in sorted order so two callers
// with overlapping sets cannot deadlock. The returned function releases every key.
type Locker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are reference counted and dropped once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

func (m *KeyedMutex) Lock(ctx context.Context, keys []string) (func(), error) {
	keys = normalize(keys)
	held := make([]*entry, 0, len(keys))
	heldKeys := make([]string, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].ch
			m.decref(heldKeys[i])
		}
	}

	for _, k := range keys {
		e := m.incref(k)
		select {
		case e.ch <- struct{}{}:
			held = append(held, e)
			heldKeys = append(heldKeys, k)
		case <-ctx.Done():
			m.decref(k)
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *KeyedMutex) incref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) decref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.locks[key]
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

// size reports how many keys currently have waiters or holders.
func (m *KeyedMutex) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
