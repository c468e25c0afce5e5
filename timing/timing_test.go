package timing

import (
	"testing"
	"time"
)

func TestTimerMetricsOnlyPopulatesObservedPhases(t *testing.T) {
	tm := NewTimer()
	tm.StartDNS()
	time.Sleep(time.Millisecond)
	tm.EndDNS()
	tm.StartTCP()
	time.Sleep(time.Millisecond)
	tm.EndTCP()

	m := tm.Metrics()
	if m.DNSLookup <= 0 {
		t.Errorf("DNSLookup = %v, want > 0", m.DNSLookup)
	}
	if m.TCPConnect <= 0 {
		t.Errorf("TCPConnect = %v, want > 0", m.TCPConnect)
	}
	if m.TLSHandshake != 0 {
		t.Errorf("TLSHandshake = %v, want 0 (never started)", m.TLSHandshake)
	}
	if m.TotalTime <= 0 {
		t.Errorf("TotalTime = %v, want > 0", m.TotalTime)
	}
}

func TestNilTimerIsSafe(t *testing.T) {
	var tm *Timer
	tm.StartDNS()
	tm.EndDNS()
	if got := tm.Metrics(); got != (Metrics{}) {
		t.Errorf("nil timer Metrics = %+v, want zero value", got)
	}
}

func TestConnectionTimeSumsPhases(t *testing.T) {
	m := Metrics{DNSLookup: time.Millisecond, TCPConnect: 2 * time.Millisecond, TLSHandshake: 3 * time.Millisecond}
	if got, want := m.ConnectionTime(), 6*time.Millisecond; got != want {
		t.Errorf("ConnectionTime = %v, want %v", got, want)
	}
}
