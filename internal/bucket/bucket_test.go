package bucket

import (
	"path/filepath"
	"testing"
	"time"
)

func TestKeyFor(t *testing.T) {
	cases := []struct {
		ts   time.Time
		want Key
	}{
		{time.Date(2020, time.January, 15, 10, 0, 0, 0, time.UTC), Key{2020, time.January}},
		{time.Date(2020, time.January, 20, 23, 59, 0, 0, time.UTC), Key{2020, time.January}},
		{time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC), Key{2021, time.June}},
		{time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC), Key{1999, time.December}},
		{time.Time{}, Unknown},
	}
	for _, tc := range cases {
		if got := KeyFor(tc.ts); got != tc.want {
			t.Errorf("KeyFor(%v) = %v, want %v", tc.ts, got, tc.want)
		}
	}
}

func TestKeyString(t *testing.T) {
	cases := []struct {
		key  Key
		want string
	}{
		{Key{2020, time.January}, "2020-01"},
		{Key{2021, time.June}, "2021-06"},
		{Key{2021, time.December}, "2021-12"},
		{Unknown, "0000-00"},
	}
	for _, tc := range cases {
		if got := tc.key.String(); got != tc.want {
			t.Errorf("%#v.String() = %q, want %q", tc.key, got, tc.want)
		}
		parsed, err := ParseKey(tc.want)
		if err != nil {
			t.Errorf("ParseKey(%q) failed: %v", tc.want, err)
		} else if parsed != tc.key {
			t.Errorf("ParseKey(%q) = %v, want %v", tc.want, parsed, tc.key)
		}
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "x", "2020", "2020-13"} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("ParseKey(%q) succeeded, want error", s)
		}
	}
}

func TestPaths(t *testing.T) {
	k := Key{2020, time.January}
	if got, want := k.ScratchDir("base"), filepath.Join("base", "2020", "01"); got != want {
		t.Errorf("ScratchDir = %q, want %q", got, want)
	}
	if got, want := k.ArchivePath("base"), filepath.Join("base", "2020", "01.zip"); got != want {
		t.Errorf("ArchivePath = %q, want %q", got, want)
	}
}
