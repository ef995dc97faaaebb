package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	boltStrings = "strings"
	boltZSets   = "zsets"
	boltLists   = "lists"
)

type boltValue struct {
	V   string `json:"v"`
	Exp int64  `json:"exp,omitempty"`
}

// Bolt is a Backend persisted in a BoltDB file.
type Bolt struct {
	db   *bbolt.DB
	opts options
}

// OpenBolt opens a BoltDB-backed store at the provided path.
func OpenBolt(path string, opts ...Option) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("kv: bolt path is required")
	}
	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt: %w", err)
	}
	b := &Bolt{db: db, opts: buildOptions(opts)}
	if err := b.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) ensureBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{boltStrings, boltZSets, boltLists} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("kv: create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying BoltDB database.
func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Bolt) readValue(bucket *bbolt.Bucket, key string) (boltValue, bool, error) {
	raw := bucket.Get([]byte(key))
	if raw == nil {
		return boltValue{}, false, nil
	}
	var v boltValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return boltValue{}, false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	if v.Exp != 0 && v.Exp <= b.opts.now().UnixMilli() {
		return boltValue{}, false, nil
	}
	return v, true, nil
}

func writeValue(bucket *bbolt.Bucket, key string, v boltValue) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), raw)
}

// Get returns the value stored at key.
func (b *Bolt) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		v  boltValue
		ok bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, ok, err = b.readValue(tx.Bucket([]byte(boltStrings)), key)
		return err
	})
	return v.V, ok, err
}

// Set stores value at key and clears its expiry.
func (b *Bolt) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return writeValue(tx.Bucket([]byte(boltStrings)), key, boltValue{V: value})
	})
}

// Delete removes key from every keyspace.
func (b *Bolt) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(boltStrings)).Delete([]byte(key)); err != nil {
			return err
		}
		for _, name := range []string{boltZSets, boltLists} {
			parent := tx.Bucket([]byte(name))
			if parent.Bucket([]byte(key)) == nil {
				continue
			}
			if err := parent.DeleteBucket([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncrBy adds n to the integer at key, treating a missing or expired key as 0.
func (b *Bolt) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var cur int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltStrings))
		v, ok, err := b.readValue(bucket, key)
		if err != nil {
			return err
		}
		if ok {
			cur, err = strconv.ParseInt(v.V, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrNotInteger, key)
			}
		}
		cur += n
		v.V = strconv.FormatInt(cur, 10)
		return writeValue(bucket, key, v)
	})
	if err != nil {
		return 0, err
	}
	return cur, nil
}

// Expire sets a TTL on an existing key. Missing keys are ignored.
func (b *Bolt) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltStrings))
		v, ok, err := b.readValue(bucket, key)
		if err != nil || !ok {
			return err
		}
		v.Exp = expiryMillis(b.opts.now(), ttl)
		return writeValue(bucket, key, v)
	})
}

// PurgeExpired deletes expired string keys.
func (b *Bolt) PurgeExpired(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := b.opts.now().UnixMilli()
	var n int64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltStrings))
		var expired [][]byte
		err := bucket.ForEach(func(k, raw []byte) error {
			var v boltValue
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil
			}
			if v.Exp != 0 && v.Exp <= now {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func scoreBytes(score float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(score))
	return buf
}

func scoreFrom(raw []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(raw))
}

// ZAdd sets member's score.
func (b *Bolt) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		set, err := tx.Bucket([]byte(boltZSets)).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		return set.Put([]byte(member), scoreBytes(score))
	})
}

func (b *Bolt) loadSet(tx *bbolt.Tx, key string) []ScoredMember {
	set := tx.Bucket([]byte(boltZSets)).Bucket([]byte(key))
	if set == nil {
		return nil
	}
	var out []ScoredMember
	_ = set.ForEach(func(k, v []byte) error {
		out = append(out, ScoredMember{Member: string(k), Score: scoreFrom(v)})
		return nil
	})
	sortScored(out)
	return out
}

// ZRevRange returns a window of the set, highest score first.
func (b *Bolt) ZRevRange(ctx context.Context, key string, offset, limit int) ([]ScoredMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ScoredMember
	err := b.db.View(func(tx *bbolt.Tx) error {
		all := b.loadSet(tx, key)
		start, end := window(len(all), offset, limit)
		out = all[start:end]
		return nil
	})
	return out, err
}

// ZRevRank returns member's zero-based position in ZRevRange order.
func (b *Bolt) ZRevRank(ctx context.Context, key, member string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	rank, found := 0, false
	err := b.db.View(func(tx *bbolt.Tx) error {
		for i, sm := range b.loadSet(tx, key) {
			if sm.Member == member {
				rank, found = i, true
				break
			}
		}
		return nil
	})
	return rank, found, err
}

// ZCard returns the number of members in the set.
func (b *Bolt) ZCard(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := b.db.View(func(tx *bbolt.Tx) error {
		if set := tx.Bucket([]byte(boltZSets)).Bucket([]byte(key)); set != nil {
			return set.ForEach(func(_, _ []byte) error {
				n++
				return nil
			})
		}
		return nil
	})
	return n, err
}

// LPushCapped prepends value and keeps at most max entries.
func (b *Bolt) LPushCapped(ctx context.Context, key, value string, max int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		list, err := tx.Bucket([]byte(boltLists)).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		seq, err := list.NextSequence()
		if err != nil {
			return err
		}
		id := make([]byte, 8)
		binary.BigEndian.PutUint64(id, seq)
		if err := list.Put(id, []byte(value)); err != nil {
			return err
		}
		if max <= 0 {
			return nil
		}
		// Keys are ascending sequence numbers, so the oldest entries sit first.
		var keys [][]byte
		c := list.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for i := 0; i < len(keys)-max; i++ {
			if err := list.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LRange returns a window of the list, newest first.
func (b *Bolt) LRange(ctx context.Context, key string, offset, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		list := tx.Bucket([]byte(boltLists)).Bucket([]byte(key))
		if list == nil {
			return nil
		}
		c := list.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			all = append(all, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	start, end := window(len(all), offset, limit)
	return all[start:end], nil
}

// Ping checks that the database is open and readable.
func (b *Bolt) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(boltStrings)) == nil {
			return fmt.Errorf("kv: strings bucket is missing")
		}
		return nil
	})
}
