package chat

import (
	"strings"
	"testing"

	"github.com/hpungsan/parley/internal/locale"
)

const hebrewExport = "Messages and calls are end-to-end encrypted.\n" +
	"\u200f[05.03.2024, 14:02:10] Dana: Hello there\n" +
	"\u200f[05.03.2024, 14:03:00] Avi: first line\nsecond line\n" +
	"\u200f[05.03.2024, 14:04:00] Dana left\n" +
	"\u200f[6.3.2024, 9:15:00] Avi: \u200e<מצורף: 00000012-PHOTO-2024-03-06.jpg>\n"

func TestSegments_Hebrew(t *testing.T) {
	segs := Segments(hebrewExport, locale.Hebrew())

	if len(segs) != 4 {
		t.Fatalf("len(segments) = %d, want 4", len(segs))
	}

	want := []struct {
		raw  string
		body string
	}{
		{"05.03.2024, 14:02:10", " Dana: Hello there\n"},
		{"05.03.2024, 14:03:00", " Avi: first line\nsecond line\n"},
		{"05.03.2024, 14:04:00", " Dana left\n"},
		{"6.3.2024, 9:15:00", " Avi: \u200e<מצורף: 00000012-PHOTO-2024-03-06.jpg>\n"},
	}
	for i, w := range want {
		if segs[i].RawTimestamp != w.raw {
			t.Errorf("segment[%d].RawTimestamp = %q, want %q", i, segs[i].RawTimestamp, w.raw)
		}
		if segs[i].RawBody != w.body {
			t.Errorf("segment[%d].RawBody = %q, want %q", i, segs[i].RawBody, w.body)
		}
	}
}

func TestSegments_PreambleDropped(t *testing.T) {
	segs := Segments(hebrewExport, locale.Hebrew())
	for _, s := range segs {
		if strings.Contains(s.RawBody, "end-to-end") {
			t.Fatalf("preamble leaked into segment %+v", s)
		}
	}
	if segs[0].Offset != strings.Index(hebrewExport, "\u200f[") {
		t.Errorf("first offset = %d", segs[0].Offset)
	}
}

func TestSegments_Reconstruction(t *testing.T) {
	inputs := []struct {
		name    string
		text    string
		profile *locale.Profile
		count   int
	}{
		{"hebrew", hebrewExport, locale.Hebrew(), 4},
		{
			"english without marks",
			"[3/5/24, 2:02:10 PM] Dana: hi\n[3/5/24, 2:03:00 PM] Avi: yo\nmore\n",
			locale.English(),
			2,
		},
		{
			"english mixed marks",
			"\u200e[12/31/23, 11:59:59 PM] Dana: bye 2023\r\n[1/1/24, 12:00:00 AM] Avi: hello 2024",
			locale.English(),
			2,
		},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			segs := Segments(tt.text, tt.profile)
			if len(segs) != tt.count {
				t.Fatalf("len(segments) = %d, want %d", len(segs), tt.count)
			}

			var b strings.Builder
			for _, s := range segs {
				b.WriteString(s.Boundary)
				b.WriteString(s.RawBody)
			}
			if b.String() != tt.text[segs[0].Offset:] {
				t.Errorf("reconstruction mismatch:\n got %q\nwant %q", b.String(), tt.text[segs[0].Offset:])
			}
		})
	}
}

func TestSegments_NoBoundaries(t *testing.T) {
	for _, text := range []string{"", "just some text\nwithout boundaries", "[not a date] hi"} {
		if segs := Segments(text, locale.Hebrew()); len(segs) != 0 {
			t.Errorf("Segments(%q) = %d segments, want 0", text, len(segs))
		}
	}
}

func TestSegments_DigitWidthsAreBounded(t *testing.T) {
	text := "\u200f[05.03.2024, 14:02:10] Dana: dates like [123.03.2024, 14:02:10] or " +
		"[05.03.20245, 14:02:10] or [05.03.2024, 14:2:10] stay in the body\n" +
		"\u200f[05.03.2024, 14:02:11] Avi: ok"

	segs := Segments(text, locale.Hebrew())
	if len(segs) != 2 {
		t.Fatalf("len(segments) = %d, want 2", len(segs))
	}
	if !strings.Contains(segs[0].RawBody, "stay in the body") {
		t.Errorf("body = %q", segs[0].RawBody)
	}
}
