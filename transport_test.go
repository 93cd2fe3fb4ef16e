package httpconn

import "testing"

func TestSetSystemVTableRoundTrips(t *testing.T) {
	original := CurrentSystemVTable()
	defer SetSystemVTable(original)

	custom := &SystemVTable{}
	SetSystemVTable(custom)
	if CurrentSystemVTable() != custom {
		t.Fatal("CurrentSystemVTable did not return the installed vtable")
	}
}

func TestTLSOptionsEffectiveConfigDefaultsNextProtos(t *testing.T) {
	var opts *TLSOptions
	cfg := opts.effectiveConfig()
	if len(cfg.NextProtos) != 2 || cfg.NextProtos[0] != string(alpnH2) || cfg.NextProtos[1] != string(alpnHTTP11) {
		t.Fatalf("NextProtos = %v, want [h2 http/1.1]", cfg.NextProtos)
	}
}
