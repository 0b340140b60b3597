package engine

import (
	"fmt"
	"testing"
	"time"
)

func makeChunk(id int) Chunk {
	return Chunk{
		SessionID: "test",
		Stream:    StreamStdout,
		Text:      fmt.Sprintf("line-%d\n", id),
		Seq:       uint64(id),
		Timestamp: time.Now().UTC(),
	}
}

func TestRetentionBuffer_EmptySnapshot(t *testing.T) {
	rb := NewRetentionBuffer(10)
	chunks := rb.Snapshot()
	if len(chunks) != 0 {
		t.Errorf("expected empty buffer, got %d chunks", len(chunks))
	}
	if rb.Len() != 0 {
		t.Errorf("expected Len 0, got %d", rb.Len())
	}
}

func TestRetentionBuffer_PartialFill(t *testing.T) {
	rb := NewRetentionBuffer(10)
	for i := 0; i < 5; i++ {
		rb.Append(makeChunk(i))
	}

	chunks := rb.Snapshot()
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		expected := fmt.Sprintf("line-%d\n", i)
		if c.Text != expected {
			t.Errorf("chunk %d: expected %s, got %s", i, expected, c.Text)
		}
	}
}

func TestRetentionBuffer_Eviction(t *testing.T) {
	rb := NewRetentionBuffer(5)
	for i := 0; i < 8; i++ {
		rb.Append(makeChunk(i))
	}

	chunks := rb.Snapshot()
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}

	// Oldest three evicted; 3..7 remain in original relative order.
	for i, c := range chunks {
		expected := fmt.Sprintf("line-%d\n", i+3)
		if c.Text != expected {
			t.Errorf("chunk %d: expected %s, got %s", i, expected, c.Text)
		}
	}
	if rb.Len() != 5 {
		t.Errorf("expected Len 5, got %d", rb.Len())
	}
}

func TestRetentionBuffer_ExactCapacity(t *testing.T) {
	rb := NewRetentionBuffer(3)
	for i := 0; i < 3; i++ {
		rb.Append(makeChunk(i))
	}

	chunks := rb.Snapshot()
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		expected := fmt.Sprintf("line-%d\n", i)
		if c.Text != expected {
			t.Errorf("chunk %d: expected %s, got %s", i, expected, c.Text)
		}
	}
}

func TestRetentionBuffer_DefaultCapacity(t *testing.T) {
	rb := NewRetentionBuffer(0)
	if rb.Cap() != DefaultRetention {
		t.Errorf("expected default capacity %d, got %d", DefaultRetention, rb.Cap())
	}
}
