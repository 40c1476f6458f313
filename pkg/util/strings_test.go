package util

import "testing"

func TestParseIntList(t *testing.T) {
	got, err := ParseIntList(" 1, 2,,3 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected ids %v", got)
	}
	if _, err := ParseIntList("1,x"); err == nil {
		t.Fatalf("expected error for non-numeric item")
	}
}
