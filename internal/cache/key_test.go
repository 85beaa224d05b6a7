package cache

import (
	"strings"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey("funnel_analysis", "Buy our amazing course today!!", "Welcome to our course platform...")
	b := DeriveKey("funnel_analysis", "Buy our amazing course today!!", "Welcome to our course platform...")
	if a != b {
		t.Fatalf("same input produced different keys: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, KeyPrefix) {
		t.Errorf("expected prefix %q, got %s", KeyPrefix, a)
	}
	if len(a) != len(KeyPrefix)+64 {
		t.Errorf("expected fixed-length key, got %d chars", len(a))
	}
}

func TestDeriveKey_EveryInputMatters(t *testing.T) {
	base := DeriveKey("funnel_analysis", "ad text one", "landing text one")
	variants := []string{
		DeriveKey("other_service", "ad text one", "landing text one"),
		DeriveKey("funnel_analysis", "ad text two", "landing text one"),
		DeriveKey("funnel_analysis", "ad text one", "landing text two"),
		DeriveKey("funnel_analysis", "landing text one", "ad text one"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with base key", i)
		}
	}
}

func TestDeriveKey_SeparatorShift(t *testing.T) {
	a := DeriveKey("funnel_analysis", "abc:def", "ghi")
	b := DeriveKey("funnel_analysis", "abc", "def:ghi")
	if a == b {
		t.Fatal("moving the separator between texts must change the key")
	}
}

func TestDeriveKey_NoCollisionsOnCorpus(t *testing.T) {
	seen := make(map[string]string)
	ads := []string{"Buy now and save 50%", "Learn Go in 30 days", "Free shipping today", "Limited seats left"}
	pages := []string{"Welcome to the store", "Course platform home", "Checkout page", "Pricing and plans"}
	for _, ad := range ads {
		for _, page := range pages {
			k := DeriveKey("funnel_analysis", ad, page)
			if prev, dup := seen[k]; dup {
				t.Fatalf("collision between %q and %q", prev, ad+"|"+page)
			}
			seen[k] = ad + "|" + page
		}
	}
}
