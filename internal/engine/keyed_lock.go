package engine

import (
	"hash/fnv"
	"sync"
)

// keyedLock serializes work per key. Keys are spread over shards so that
// the bookkeeping map is not a global point of contention; each key gets its
// own mutex, so distinct entities never wait on each other.
type keyedLock struct {
	shards []*lockShard
}

type lockShard struct {
	mu   sync.Mutex
	keys map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int // holders plus waiters, guarded by the shard mutex
}

func newKeyedLock(shards int) *keyedLock {
	if shards <= 0 {
		shards = 64
	}
	k := &keyedLock{shards: make([]*lockShard, shards)}
	for i := range k.shards {
		k.shards[i] = &lockShard{keys: make(map[string]*keyEntry)}
	}
	return k
}

func (k *keyedLock) shardFor(key string) *lockShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return k.shards[h.Sum32()%uint32(len(k.shards))]
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedLock) Lock(key string) (unlock func()) {
	sh := k.shardFor(key)

	sh.mu.Lock()
	e, ok := sh.keys[key]
	if !ok {
		e = &keyEntry{}
		sh.keys[key] = e
	}
	e.refs++
	sh.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		sh.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(sh.keys, key)
		}
		sh.mu.Unlock()
	}
}

// held returns the number of keys currently locked or awaited.
func (k *keyedLock) held() int {
	n := 0
	for _, sh := range k.shards {
		sh.mu.Lock()
		n += len(sh.keys)
		sh.mu.Unlock()
	}
	return n
}
