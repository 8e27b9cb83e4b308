package socket

import (
	"net"
	"testing"
	"time"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantPort string
	}{
		{"example.com:9000", "example.com", "9000"},
		{"example.com", "example.com", DefaultPort},
		{"127.0.0.1:12382", "127.0.0.1", "12382"},
		{"", "", DefaultPort},
	}

	for _, tt := range tests {
		host, port := ParseEndpoint(tt.in)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("ParseEndpoint(%q) = (%q, %q), want (%q, %q)", tt.in, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestBindAndSendTo(t *testing.T) {
	recv := New(nil)
	if err := recv.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind receiver: %v", err)
	}
	defer recv.Close()

	send := New(nil)
	if err := send.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind sender: %v", err)
	}
	defer send.Close()

	recvAddr := recv.Conn.LocalAddr().(*net.UDPAddr)

	n, err := send.SendTo(recvAddr, []byte("hel"), []byte("lo"))
	if err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("SendTo() = %d bytes, want 5", n)
	}

	buf := make([]byte, 16)
	recv.Conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, _, err := recv.Conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}

	if string(buf[:got]) != "hello" {
		t.Errorf("received %q, want %q", buf[:got], "hello")
	}
}

func TestSetReceiveBuffer(t *testing.T) {
	sock := New(nil)
	if err := sock.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sock.Close()

	if err := sock.SetReceiveBuffer(); err != nil {
		t.Fatalf("SetReceiveBuffer() error = %v", err)
	}
}
