package storage

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pders01/streamview/internal/protocol"
)

func setupTestArchive(t *testing.T) *Archive {
	t.Helper()
	archive, err := NewArchive(filepath.Join(t.TempDir(), "capture", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

// tick makes capture times strictly increasing.
func tick(a *Archive) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	a.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func decode(t *testing.T, raw string) *protocol.Message {
	t.Helper()
	var m protocol.Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return &m
}

func TestArchive_SaveAndGetMessage(t *testing.T) {
	archive := setupTestArchive(t)

	m := decode(t, `{"topic":"orders","offset":"7","key":"k1","value":"hello"}`)
	if err := archive.SaveMessage(m); err != nil {
		t.Fatalf("failed to save message: %v", err)
	}

	rec, err := archive.GetMessage("orders", 7)
	if err != nil {
		t.Fatalf("failed to get message: %v", err)
	}
	if rec.Topic != "orders" || rec.Offset != 7 {
		t.Errorf("unexpected record %s/%d", rec.Topic, rec.Offset)
	}

	got, err := rec.Message()
	if err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if v, _ := got.Field("value"); v != "hello" {
		t.Errorf("expected value hello, got %q", v)
	}
	if got.Offset != 7 {
		t.Errorf("expected offset 7, got %d", got.Offset)
	}
}

func TestArchive_GetMessage_NotFound(t *testing.T) {
	archive := setupTestArchive(t)

	_, err := archive.GetMessage("orders", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestArchive_GetMessagesByTopicNewestFirst(t *testing.T) {
	archive := setupTestArchive(t)

	for _, raw := range []string{
		`{"topic":"a","offset":2}`,
		`{"topic":"a","offset":10}`,
		`{"topic":"a","offset":1}`,
		`{"topic":"ab","offset":99}`,
		`{"topic":"b","offset":5}`,
	} {
		if err := archive.SaveMessage(decode(t, raw)); err != nil {
			t.Fatalf("save %s: %v", raw, err)
		}
	}

	recs, err := archive.GetMessages("a", 0)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	want := []int{10, 2, 1}
	if len(recs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(recs))
	}
	for i, off := range want {
		if recs[i].Offset != off || recs[i].Topic != "a" {
			t.Errorf("position %d: expected a/%d, got %s/%d", i, off, recs[i].Topic, recs[i].Offset)
		}
	}

	limited, err := archive.GetMessages("a", 2)
	if err != nil {
		t.Fatalf("failed to get messages with limit: %v", err)
	}
	if len(limited) != 2 || limited[0].Offset != 10 {
		t.Errorf("expected the two newest messages, got %d", len(limited))
	}

	last, err := archive.GetMessages("b", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].Offset != 5 {
		t.Errorf("expected b/5 as the only message of the last topic")
	}

	none, err := archive.GetMessages("zzz", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no messages for unknown topic, got %d", len(none))
	}
}

func TestArchive_GetMessagesAllTopics(t *testing.T) {
	archive := setupTestArchive(t)
	tick(archive)

	for _, raw := range []string{
		`{"topic":"b","offset":1}`,
		`{"topic":"a","offset":1}`,
		`{"offset":3}`,
	} {
		if err := archive.SaveMessage(decode(t, raw)); err != nil {
			t.Fatal(err)
		}
	}

	for _, topic := range []string{"", AllTopics} {
		recs, err := archive.GetMessages(topic, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(recs))
		}
		if recs[0].Offset != 3 || recs[1].Topic != "a" || recs[2].Topic != "b" {
			t.Errorf("expected newest capture first, got %s/%d %s/%d %s/%d",
				recs[0].Topic, recs[0].Offset, recs[1].Topic, recs[1].Offset, recs[2].Topic, recs[2].Offset)
		}
	}
}

func TestArchive_TopicsAndCount(t *testing.T) {
	archive := setupTestArchive(t)
	tick(archive)

	for _, raw := range []string{
		`{"topic":"b","offset":1}`,
		`{"topic":"a","offset":1}`,
		`{"topic":"a","offset":2}`,
		`{"topic":"a","offset":2,"value":"again"}`,
	} {
		if err := archive.SaveMessage(decode(t, raw)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := archive.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 captured messages, got %d", n)
	}

	topics, err := archive.Topics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
	if topics[0].Name != "a" || topics[0].Messages != 2 {
		t.Errorf("expected a with 2 messages, got %s with %d", topics[0].Name, topics[0].Messages)
	}
	if !topics[0].LastSeen.After(topics[0].FirstSeen) {
		t.Error("last seen should advance on a later capture")
	}

	rec, err := archive.GetMessage("a", 2)
	if err != nil {
		t.Fatal(err)
	}
	m, err := rec.Message()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Field("value"); v != "again" {
		t.Error("a later capture of the same offset should replace the earlier one")
	}
}

func TestArchive_RejectsNegativeOffset(t *testing.T) {
	archive := setupTestArchive(t)

	err := archive.SaveMessage(&protocol.Message{Topic: "a", Offset: -1})
	if !errors.Is(err, protocol.ErrInvalidOffset) {
		t.Errorf("expected ErrInvalidOffset, got %v", err)
	}
	if err := archive.SaveMessage(nil); err != nil {
		t.Errorf("nil message should be ignored, got %v", err)
	}
}

func TestArchive_ForEach(t *testing.T) {
	archive := setupTestArchive(t)
	for i := 0; i < 5; i++ {
		if err := archive.SaveMessage(&protocol.Message{Topic: "t", Offset: i}); err != nil {
			t.Fatal(err)
		}
	}

	var seen []int
	err := archive.ForEach(func(r *Record) error {
		seen = append(seen, r.Offset)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 5 || seen[0] != 0 || seen[4] != 4 {
		t.Errorf("expected offsets 0..4 in order, got %v", seen)
	}
}

func TestArchive_TopicsDoNotShareKeys(t *testing.T) {
	archive := setupTestArchive(t)
	tick(archive)

	for _, m := range []*protocol.Message{
		{Topic: "orders", Offset: 1},
		{Topic: "orders/eu", Offset: 2},
		{Topic: "orders0", Offset: 3},
		{Topic: "_", Offset: 4},
		{Topic: "", Offset: 5},
	} {
		if err := archive.SaveMessage(m); err != nil {
			t.Fatal(err)
		}
	}

	for topic, want := range map[string]int{"orders": 1, "orders/eu": 2, "orders0": 3, "_": 4} {
		recs, err := archive.GetMessages(topic, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].Offset != want || recs[0].Topic != topic {
			t.Errorf("GetMessages(%q): expected only offset %d, got %v", topic, want, recs)
		}
	}

	if _, err := archive.GetMessage("", 5); err != nil {
		t.Errorf("message without topic should be stored on its own: %v", err)
	}
	if _, err := archive.GetMessage("_", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("topic _ must not see the message without topic, got %v", err)
	}

	topics, err := archive.Topics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 5 {
		t.Fatalf("expected 5 topics, got %d", len(topics))
	}
	for _, info := range topics {
		if info.Messages != 1 {
			t.Errorf("topic %q: expected 1 message, got %d", info.Name, info.Messages)
		}
	}
}

func TestArchive_LargeOffsetsStayOrdered(t *testing.T) {
	archive := setupTestArchive(t)
	for _, off := range []int{9, 1 << 40, 10, 0} {
		if err := archive.SaveMessage(&protocol.Message{Topic: "t", Offset: off}); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := archive.GetMessages("t", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[0].Offset != 1<<40 || recs[1].Offset != 10 || recs[2].Offset != 9 {
		t.Errorf("expected newest three by offset, got %v", recs)
	}
}
