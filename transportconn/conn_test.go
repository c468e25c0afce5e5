package transportconn

import (
	"io"
	"net"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		if _, err := io.ReadFull(server, buf); err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if string(buf) != "hello" {
			t.Errorf("server got %q, want hello", buf)
		}
		if _, err := server.Write([]byte("world")); err != nil {
			t.Errorf("server write: %v", err)
		}
	}()

	c := New(client)
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := c.Fill(); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	got := c.Peek()
	if string(got) != "world" {
		t.Errorf("Peek = %q, want world", got)
	}
	c.Drop(len(got))
	<-done
}
