package energyprobe

import "testing"

func TestMockProbe_StopAndRead_JittersAroundMean(t *testing.T) {
	p := NewMockProbe(20.0, 2.0, 1)
	p.Start()
	reading, err := p.StopAndRead()
	if err != nil {
		t.Fatalf("StopAndRead: %v", err)
	}
	if reading < 18.0 || reading > 22.0 {
		t.Errorf("reading: got %f, want within [18, 22]", reading)
	}
}

func TestMockProbe_SameSeed_ReproducesReading(t *testing.T) {
	p1 := NewMockProbe(20.0, 2.0, 42)
	p2 := NewMockProbe(20.0, 2.0, 42)

	p1.Start()
	r1, _ := p1.StopAndRead()
	p2.Start()
	r2, _ := p2.StopAndRead()

	if r1 != r2 {
		t.Errorf("readings with identical seed: got %f and %f, want equal", r1, r2)
	}
}
