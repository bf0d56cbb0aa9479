package control

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gogpu/viewbackend/ownedfd"
)

type record struct {
	id   MessageID
	body uint32
}

func encode(id MessageID, body uint32) []byte {
	var rec [RecordSize]byte
	binary.NativeEndian.PutUint32(rec[0:4], uint32(id))
	binary.NativeEndian.PutUint32(rec[4:8], body)
	return rec[:]
}

func TestMessageIDString(t *testing.T) {
	tests := []struct {
		id   MessageID
		want string
	}{
		{RegisterSurface, "RegisterSurface"},
		{UnregisterSurface, "UnregisterSurface"},
		{MessageID(9), "MessageID(9)"},
	}
	for _, tt := range tests {
		if got := tt.id.String(); got != tt.want {
			t.Errorf("MessageID(%d).String() = %q, want %q", uint32(tt.id), got, tt.want)
		}
	}
}

func TestFeedPartialRecords(t *testing.T) {
	var got []record
	c := &Channel{handler: func(id MessageID, body uint32) {
		got = append(got, record{id, body})
	}}

	stream := append(encode(RegisterSurface, 7), encode(UnregisterSurface, 7)...)
	// Deliver in irregular chunks: 3, 1, 9, 3 bytes.
	c.Feed(stream[:3])
	if len(got) != 0 {
		t.Fatal("partial record dispatched early")
	}
	c.Feed(stream[3:4])
	c.Feed(stream[4:13])
	if len(got) != 1 {
		t.Fatalf("after 13 bytes got %d records, want 1", len(got))
	}
	c.Feed(stream[13:])

	want := []record{{RegisterSurface, 7}, {UnregisterSurface, 7}}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChannelSendServe(t *testing.T) {
	a, b, err := ownedfd.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	sender, err := Open(a, nil)
	if err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}

	got := make(chan record, 4)
	receiver, err := Open(b, func(id MessageID, body uint32) {
		got <- record{id, body}
	})
	if err != nil {
		t.Fatalf("Open(b) error = %v", err)
	}
	defer receiver.Close()

	served := make(chan error, 1)
	go func() { served <- receiver.Serve(context.Background()) }()

	sender.Send(RegisterSurface, 42)
	sender.Send(UnregisterSurface, 42)

	for _, want := range []record{{RegisterSurface, 42}, {UnregisterSurface, 42}} {
		select {
		case r := <-got:
			if r != want {
				t.Errorf("received %+v, want %+v", r, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("record not received")
		}
	}

	// Closing the sender ends Serve cleanly.
	_ = sender.Close()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() = %v, want nil on peer close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after peer close")
	}
}

func TestSendToClosedPeerDoesNotPanic(t *testing.T) {
	a, b, err := ownedfd.Socketpair()
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	_ = b.Close()
	c, err := Open(a, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	c.Send(RegisterSurface, 1)
	c.Send(UnregisterSurface, 1)
}
