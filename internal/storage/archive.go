// Package storage captures received messages into a bbolt file so they can
// be browsed and searched after they scroll out of the live buffer.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/pders01/streamview/internal/protocol"
)

var (
	topicsBucket   = []byte("topics")
	messagesBucket = []byte("messages")
)

var ErrNotFound = errors.New("record not found")

// AllTopics selects every topic in GetMessages.
const AllTopics = "all"

// Archive is the capture file.
type Archive struct {
	db  *bolt.DB
	now func() time.Time
}

func NewArchive(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating capture directory")
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening capture file")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{topicsBucket, messagesBucket} {
			if _, createErr := tx.CreateBucketIfNotExists(bucket); createErr != nil {
				return createErr
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating buckets")
	}

	return &Archive{db: db, now: time.Now}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Path returns the file backing the archive.
func (a *Archive) Path() string {
	return a.db.Path()
}

// Key tags. Messages without a topic get their own tag so they never share
// a key with a named topic.
const (
	noTopicTag    byte = 0x00
	namedTopicTag byte = 0x01
)

// topicKey is the tag, the topic length and the topic. The length keeps one
// topic's keys from being a prefix of another's.
func topicKey(topic string) []byte {
	if topic == "" {
		return []byte{noTopicTag}
	}
	k := make([]byte, 0, 5+len(topic)+8)
	k = append(k, namedTopicTag)
	k = binary.BigEndian.AppendUint32(k, uint32(len(topic)))
	return append(k, topic...)
}

// messageKey orders messages by offset within a topic.
func messageKey(topic string, offset int) []byte {
	return binary.BigEndian.AppendUint64(topicKey(topic), uint64(offset))
}

// SaveMessage stores m, replacing an earlier capture of the same topic and
// offset, and updates the topic's counters.
func (a *Archive) SaveMessage(m *protocol.Message) error {
	if m == nil {
		return nil
	}
	if m.Offset < 0 {
		return errors.Wrapf(protocol.ErrInvalidOffset, "negative offset %d", m.Offset)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	now := a.now()
	rec := Record{Topic: m.Topic, Offset: m.Offset, Body: body, CapturedAt: now}

	return a.db.Update(func(tx *bolt.Tx) error {
		mb := tx.Bucket(messagesBucket)
		key := messageKey(m.Topic, m.Offset)
		existed := mb.Get(key) != nil

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := mb.Put(key, data); err != nil {
			return err
		}

		tb := tx.Bucket(topicsBucket)
		name := topicKey(m.Topic)
		info := TopicInfo{Name: m.Topic, FirstSeen: now}
		if raw := tb.Get(name); raw != nil {
			if err := json.Unmarshal(raw, &info); err != nil {
				return err
			}
		}
		info.LastSeen = now
		if !existed {
			info.Messages++
		}
		data, err = json.Marshal(info)
		if err != nil {
			return err
		}
		return tb.Put(name, data)
	})
}

// GetMessage returns the capture of one topic and offset.
func (a *Archive) GetMessage(topic string, offset int) (*Record, error) {
	var rec Record
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(messagesBucket).Get(messageKey(topic, offset))
		if data == nil {
			return errors.Wrapf(ErrNotFound, "%q/%d", topic, offset)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetMessages returns captured messages newest first. An empty topic or
// AllTopics returns every topic ordered by capture time. A limit of zero or
// less returns everything.
func (a *Archive) GetMessages(topic string, limit int) ([]*Record, error) {
	if topic == "" || topic == AllTopics {
		return a.allMessages(limit)
	}

	var out []*Record
	prefix := topicKey(topic)
	err := a.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(messagesBucket).Cursor()

		// Offsets are at most MaxInt64, so this key sorts after all of the topic's.
		k, v := c.Seek(binary.BigEndian.AppendUint64(topicKey(topic), math.MaxUint64))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix) && len(k) == len(prefix)+8; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, &rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (a *Archive) allMessages(limit int) ([]*Record, error) {
	var out []*Record
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(_ []byte, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			out = append(out, &rec)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].CapturedAt.After(out[j].CapturedAt)
		}
		return out[i].Offset > out[j].Offset
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// Topics returns the captured topics sorted by name.
func (a *Archive) Topics() ([]*TopicInfo, error) {
	var topics []*TopicInfo
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(topicsBucket).ForEach(func(_ []byte, v []byte) error {
			var info TopicInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			topics = append(topics, &info)
			return nil
		})
	})
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics, err
}

// Count returns the number of captured messages.
func (a *Archive) Count() (int, error) {
	var n int
	err := a.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(messagesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// ForEach walks every captured message in key order.
func (a *Archive) ForEach(fn func(*Record) error) error {
	return a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(messagesBucket).ForEach(func(_ []byte, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			return fn(&rec)
		})
	})
}
