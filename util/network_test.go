package util

import (
	"context"
	"net"
	"testing"
)

func TestLookupIPv4_Numeric(t *testing.T) {
	ips, err := LookupIPv4(context.Background(), "192.168.1.1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.ParseIP("192.168.1.1")) {
		t.Errorf("got %v", ips)
	}
}

func TestLookupIPv4_Wildcard(t *testing.T) {
	ips, err := LookupIPv4(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.IPv4zero) {
		t.Errorf("got %v, want [0.0.0.0]", ips)
	}
}

func TestLookupIPv4_RejectsIPv6(t *testing.T) {
	if _, err := LookupIPv4(context.Background(), "::1"); err == nil {
		t.Error("expected error for IPv6 literal")
	}
}

func TestLookupIPv4_Localhost(t *testing.T) {
	ips, err := LookupIPv4(context.Background(), "localhost")
	if err != nil {
		t.Skipf("resolver unavailable: %v", err)
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			t.Errorf("%v is not IPv4", ip)
		}
	}
}

func TestFormatAddr(t *testing.T) {
	if got := FormatAddr("1.2.3.4", 22); got != "1.2.3.4:22" {
		t.Errorf("got %q, want %q", got, "1.2.3.4:22")
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}
