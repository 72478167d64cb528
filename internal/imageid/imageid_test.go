package imageid

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	got, err := Parse("eos-eos3.7-amd64-amd64.190419-225606.base")
	if err != nil {
		t.Fatal(err)
	}
	if got.Product != "eos" || got.Branch != "eos3.7" || got.Arch != "amd64" ||
		got.Platform != "amd64" || got.Personality != "base" {
		t.Fatalf("parsed %+v", got)
	}
	want := time.Date(2019, 4, 19, 22, 56, 6, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Fatalf("timestamp %v, want %v", got.Timestamp, want)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"eos",
		"eos-eos3.7-amd64",
		"eos-eos3.7-amd64-amd64",
		"eos-eos3.7-amd64-amd64.19x419-225606.base",
		"eos-eos3.7-amd64-amd64.190419-225606.",
		"eos-eos3.7-amd64-amd64.991399-996060.base", // month 13
	}
	for _, c := range cases {
		_, err := Parse(c)
		var invalid *InvalidError
		if !errors.As(err, &invalid) {
			t.Fatalf("%q: expected InvalidError, got %v", c, err)
		}
	}
}
