package ipdefrag

import (
	"testing"
	"time"
)

func TestInsert_UnfragmentedPassthrough(t *testing.T) {
	d := New(nil)
	defer d.Stop()

	payload := []byte("hello")

	out, ok := d.Insert(1, "1.1.1.1", "2.2.2.2", 6, 0, false, payload)
	if !ok {
		t.Fatal("expected unfragmented datagram to pass through immediately")
	}

	if string(out) != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}

	if d.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 (nothing cached for unfragmented datagrams)", d.Size())
	}
}

func TestInsert_ReassemblesTwoFragments(t *testing.T) {
	d := New(nil)
	defer d.Stop()

	// first fragment: offset 0, 8 bytes, more fragments set
	_, ok := d.Insert(42, "1.1.1.1", "2.2.2.2", 6, 0, true, []byte("01234567"))
	if ok {
		t.Fatal("expected incomplete datagram to not be returned yet")
	}

	if d.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 incomplete entry", d.Size())
	}

	// second (final) fragment: offset 1 (*8 bytes = byte offset 8)
	out, ok := d.Insert(42, "1.1.1.1", "2.2.2.2", 6, 1, false, []byte("89"))
	if !ok {
		t.Fatal("expected final fragment to complete the datagram")
	}

	if string(out) != "0123456789" {
		t.Fatalf("got %q, want %q", out, "0123456789")
	}

	if d.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after completion", d.Size())
	}
}

func TestInsert_OutOfOrderFragments(t *testing.T) {
	d := New(nil)
	defer d.Stop()

	// final fragment arrives first: its cleared MF flag triggers
	// reconstruction from what is cached, leaving the missing bytes zero.
	out, ok := d.Insert(7, "a", "b", 6, 1, false, []byte("89"))

	if !ok {
		t.Fatal("expected the MF-cleared fragment to trigger reconstruction")
	}

	if want := "\x00\x00\x00\x00\x00\x00\x00\x0089"; string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	// the late first fragment opens a new, incomplete entry.
	if _, ok := d.Insert(7, "a", "b", 6, 0, true, []byte("01234567")); ok {
		t.Fatal("expected the late first fragment to wait in a new entry")
	}
}

func TestSweep_EvictsStaleEntries(t *testing.T) {
	d := New(nil)
	defer d.Stop()

	d.Insert(1, "a", "b", 6, 0, true, []byte("partial"))

	if d.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", d.Size())
	}

	d.sweep(time.Now().Add(FragmentTimeout + time.Second))

	if d.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after sweeping a stale entry", d.Size())
	}
}

func TestInsert_DistinctKeysDoNotCollide(t *testing.T) {
	d := New(nil)
	defer d.Stop()

	d.Insert(1, "a", "b", 6, 0, true, []byte("AAAA"))
	d.Insert(1, "c", "d", 6, 0, true, []byte("BBBB"))

	if d.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 distinct entries for different src/dst with the same ip id", d.Size())
	}
}
