package engine

import "testing"

func TestMemCostCache_InsertThenLookup_RoundTrips(t *testing.T) {
	// GIVEN an empty cache
	c := NewMemCostCache()

	// WHEN an entry is inserted and then looked up
	c.Insert(42, 1000, 5.5)
	lat, eng, ok := c.Lookup(42)

	// THEN the lookup returns exactly what was inserted
	if !ok {
		t.Fatalf("Lookup: expected hit")
	}
	if lat != 1000 || eng != 5.5 {
		t.Errorf("Lookup: got (%d, %f), want (1000, 5.5)", lat, eng)
	}
}

func TestMemCostCache_Lookup_Miss_ReturnsFalse(t *testing.T) {
	c := NewMemCostCache()
	if _, _, ok := c.Lookup(99); ok {
		t.Errorf("Lookup on empty cache: expected miss")
	}
}

func TestMemCostCache_Insert_SameFingerprintOverwrites(t *testing.T) {
	// GIVEN a cache with one entry
	c := NewMemCostCache()
	c.Insert(7, 100, 1.0)

	// WHEN the same fingerprint is inserted again with new values
	c.Insert(7, 200, 2.0)

	// THEN only one entry exists, holding the latest values
	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries: got %d, want 1", len(entries))
	}
	if entries[0].LatencyUS != 200 || entries[0].EnergyUWh != 2.0 {
		t.Errorf("Entries[0]: got (%d, %f), want (200, 2.0)", entries[0].LatencyUS, entries[0].EnergyUWh)
	}
}

func TestMemCostCache_FillThenInsert_EvictsSmallestTimestamp(t *testing.T) {
	// GIVEN a cache filled to MaxEntries
	c := NewMemCostCache()
	for i := 0; i < MaxEntries; i++ {
		c.Insert(uint32(i), uint32(i), float32(i))
	}

	// AND fingerprint 0 was the least recently touched
	// WHEN a new fingerprint is inserted
	c.Insert(uint32(MaxEntries), 999, 9.9)

	// THEN fingerprint 0 (the LRU victim) is gone, and the new entry is present
	if _, _, ok := c.Lookup(0); ok {
		t.Errorf("expected fingerprint 0 to be evicted")
	}
	if _, _, ok := c.Lookup(uint32(MaxEntries)); !ok {
		t.Errorf("expected newly inserted fingerprint to be present")
	}
	if len(c.Entries()) != MaxEntries {
		t.Errorf("Entries: got %d, want %d (bounded)", len(c.Entries()), MaxEntries)
	}
}

func TestMemCostCache_Lookup_BumpsTimestamp_ProtectingFromEviction(t *testing.T) {
	// GIVEN a full cache
	c := NewMemCostCache().(*memCostCache)
	for i := 0; i < MaxEntries; i++ {
		c.Insert(uint32(i), uint32(i), float32(i))
	}

	// WHEN fingerprint 0 is looked up (refreshing its LRU timestamp)
	// and then a new fingerprint is inserted
	c.Lookup(0)
	c.Insert(uint32(MaxEntries), 1, 1)

	// THEN fingerprint 0 survives, since it is no longer the LRU victim
	if _, _, ok := c.Lookup(0); !ok {
		t.Errorf("expected fingerprint 0 to survive after being refreshed")
	}
}
