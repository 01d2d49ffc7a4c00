package internaldefs

import (
	"strings"
	"testing"

	"github.com/authkeep/authkeep"
)

func TestCounterDefsUniqueAndComplete(t *testing.T) {
	names := make(map[string]bool)
	ids := make(map[authkeep.MetricID]bool)
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "authkeep_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate definition %q", def.Name)
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
	for id := authkeep.MetricLoginSuccess; id < authkeep.MetricValidateLatency; id++ {
		if !ids[id] {
			t.Fatalf("metric %d has no counter definition", id)
		}
	}
}

func TestBuckets(t *testing.T) {
	n := NormalizeBuckets([]uint64{1, 2, 3})
	if n != [BucketCount]uint64{1, 2, 3} {
		t.Fatalf("unexpected normalize %v", n)
	}
	c := CumulativeBuckets([BucketCount]uint64{1, 0, 2, 0, 0, 0, 0, 4})
	if c != [BucketCount]uint64{1, 1, 3, 3, 3, 3, 3, 7} {
		t.Fatalf("unexpected cumulative %v", c)
	}
	if long := NormalizeBuckets(make([]uint64, 20)); len(long) != BucketCount {
		t.Fatal("normalize must truncate")
	}
}
