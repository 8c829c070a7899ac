package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/database"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()

	a, err := Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "archive.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { a.Close() }) //nolint:errcheck // Test cleanup
	return a
}

func TestOpen_Disabled(t *testing.T) {
	if _, err := Open(context.Background(), database.Config{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Open() error = %v, want ErrDisabled", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	a, err := Open(ctx, database.Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Record(ctx, &Message{ClientID: "c", Host: "h", Topic: "t", Payload: []byte("p")}); err != nil {
		t.Fatal(err)
	}
	a.Close() //nolint:errcheck // Test cleanup

	b, err := Open(ctx, database.Config{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer b.Close() //nolint:errcheck // Test cleanup

	if n, _ := b.Count(ctx); n != 1 {
		t.Errorf("Count() after reopen = %d, want 1", n)
	}
	if b.Path() != path {
		t.Errorf("Path() = %q", b.Path())
	}
}

func TestRecord(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	msg := &Message{
		ClientID: "dev1",
		Host:     "broker.local",
		Topic:    "home/temp",
		Payload:  []byte{0x00, 0x01, 0xff},
		QoS:      1,
		Retained: true,
	}
	if err := a.Record(ctx, msg); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !strings.HasPrefix(msg.ID, "msg-") {
		t.Errorf("ID = %q, want msg- prefix", msg.ID)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set")
	}

	got, err := a.Recent(ctx, Filter{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() len = %d, want 1", len(got))
	}
	m := got[0]
	if m.ID != msg.ID || m.Topic != "home/temp" || string(m.Payload) != string(msg.Payload) ||
		m.QoS != 1 || !m.Retained || !m.ReceivedAt.Equal(msg.ReceivedAt) {
		t.Errorf("Recent()[0] = %+v, want %+v", m, *msg)
	}
}

func TestRecord_EmptyPayload(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if err := a.Record(ctx, &Message{ClientID: "c", Host: "h", Topic: "t"}); err != nil {
		t.Fatalf("Record() with nil payload error = %v", err)
	}
	got, _ := a.Recent(ctx, Filter{})
	if len(got) != 1 || len(got[0].Payload) != 0 {
		t.Errorf("Recent() = %+v", got)
	}
}

func TestRecent_FilterAndOrder(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		topic := "home/temp"
		if i%2 == 1 {
			topic = "home/humidity"
		}
		err := a.Record(ctx, &Message{
			ClientID:   "dev1",
			Host:       "broker.local",
			Topic:      topic,
			Payload:    []byte(fmt.Sprint(i)),
			ReceivedAt: base.Add(time.Duration(i) * 500 * time.Millisecond),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Record(ctx, &Message{ClientID: "dev2", Host: "broker.local", Topic: "home/temp", Payload: []byte("x"), ReceivedAt: base}); err != nil {
		t.Fatal(err)
	}

	temps, err := a.Recent(ctx, Filter{ClientID: "dev1", Topic: "home/temp"})
	if err != nil {
		t.Fatal(err)
	}
	var payloads []string
	for _, m := range temps {
		payloads = append(payloads, string(m.Payload))
	}
	if strings.Join(payloads, ",") != "4,2,0" {
		t.Errorf("payloads = %v, want newest first [4 2 0]", payloads)
	}

	limited, _ := a.Recent(ctx, Filter{Limit: 2})
	if len(limited) != 2 || string(limited[0].Payload) != "4" {
		t.Errorf("Recent(limit 2) = %+v", limited)
	}

	if n, _ := a.Count(ctx); n != 6 {
		t.Errorf("Count() = %d, want 6", n)
	}
}

func TestStatusAndReset(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := &Message{ClientID: "dev1", Host: "broker.local", Topic: "a", Payload: []byte(fmt.Sprint(i))}
		if err := a.Record(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	st, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Messages != 3 || st.Path != a.Path() {
		t.Errorf("Status() = %+v", st)
	}
	if len(st.Applied) != 1 || len(st.Pending) != 0 {
		t.Errorf("schema = applied %v pending %v", st.Applied, st.Pending)
	}

	if err := a.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	st, err = a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() after Reset error = %v", err)
	}
	if st.Messages != 0 || len(st.Applied) != 1 {
		t.Errorf("Status() after Reset = %+v", st)
	}

	if err := a.Record(ctx, &Message{ClientID: "dev1", Host: "h", Topic: "b", Payload: []byte("x")}); err != nil {
		t.Errorf("Record() after Reset error = %v", err)
	}
}

func TestStatus_Closed(t *testing.T) {
	a := openTestArchive(t)
	a.Close() //nolint:errcheck // Test setup

	if _, err := a.Status(context.Background()); err == nil {
		t.Error("Status() on a closed archive should fail")
	}
}
