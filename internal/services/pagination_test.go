package services

import "testing"

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, per, want int }{
		{0, 10, 1},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{101, 50, 3},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.per); got != tc.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.per, got, tc.want)
		}
	}
}

func TestPageRequestNormalize(t *testing.T) {
	p, err := PageRequest{}.normalize()
	if err != nil || p.Page != 1 || p.PerPage != DefaultPerPage || p.Filter != FilterAll {
		t.Fatalf("defaults = %+v, %v", p, err)
	}
	for _, bad := range []PageRequest{{Page: -1}, {PerPage: MaxPerPage + 1}, {PerPage: -5}} {
		if _, err := bad.normalize(); err == nil {
			t.Fatalf("%+v accepted", bad)
		}
	}
}

func TestParseRowFilter(t *testing.T) {
	for in, want := range map[string]RowFilter{"": FilterAll, "all": FilterAll, "rated": FilterRated, "unrated": FilterUnrated} {
		if got, err := ParseRowFilter(in); err != nil || got != want {
			t.Fatalf("ParseRowFilter(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseRowFilter("mine"); err == nil {
		t.Fatal("unknown filter accepted")
	}
}
