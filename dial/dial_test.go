package dial

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/corehttp/rawcore/rhttperr"
)

func TestConfigValidateRejectsEmptyHost(t *testing.T) {
	_, _, err := Dial(context.Background(), Config{Port: 80}, nil)
	if rhttperr.GetErrorType(err) != rhttperr.ErrorTypeValidation {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestConfigValidateRejectsConflictingSNI(t *testing.T) {
	cfg := Config{Host: "example.com", Port: 443, TLS: true, SNI: "other.example", DisableSNI: true}
	_, _, err := Dial(context.Background(), cfg, nil)
	if rhttperr.GetErrorType(err) != rhttperr.ErrorTypeValidation {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDialConnectsOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		close(accepted)
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, meta, err := Dial(ctx, Config{Host: host, Port: port, ConnTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if meta.ResolvedIP == "" {
		t.Errorf("expected ResolvedIP to be set for a DNS-resolved dial")
	}
	<-accepted
}

func TestDialConnectIPBypassesDNS(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, meta, err := Dial(ctx, Config{Host: "ignored.invalid", Port: port, ConnectIP: "127.0.0.1", ConnTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if meta.ResolvedIP != "127.0.0.1" {
		t.Errorf("ResolvedIP = %q, want 127.0.0.1", meta.ResolvedIP)
	}
}
