package chat

import "testing"

func TestSplitSender(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSender string
		wantText   string
		wantOK     bool
	}{
		{"simple", "Dana: Hello there", "Dana", "Hello there", true},
		{"segment padding", " Dana: Hello there\n", "Dana", "Hello there", true},
		{"leading mark", "\u200e Dana: hi", "Dana", "hi", true},
		{"name with spaces", "Dana Levi: hi", "Dana Levi", "hi", true},
		{"multiline text", "Avi: first line\nsecond line\n", "Avi", "first line\nsecond line", true},
		{"newline after colon", "Avi:\nlist:\n- a", "Avi", "list:\n- a", true},
		{"later colons stay in text", "Dana: a: b", "Dana", "a: b", true},
		{"notification", "Dana left", NotificationSender, "Dana left", false},
		{"url at start", "https://example.com is down", NotificationSender, "https://example.com is down", false},
		{"colon inside time", "Meeting at 10:30: be there", NotificationSender, "Meeting at 10:30: be there", false},
		{"no space after colon", "Dana:hi", NotificationSender, "Dana:hi", false},
		{"empty prefix", ": hi", NotificationSender, ": hi", false},
		{"only marks before colon", "\u200f: hi", NotificationSender, ": hi", false},
		{"empty body", "", NotificationSender, "", false},
		{"author with empty text", " Dana: \n", "Dana", "", true},
		{"author with bare newline", "Dana:\n", "Dana", "", true},
		{"colon at end", "Dana:", NotificationSender, "Dana:", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, text, ok := SplitSender(tt.body)
			if sender != tt.wantSender {
				t.Errorf("sender = %q, want %q", sender, tt.wantSender)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

// A body whose first phrase happens to end in ": " is split there even when
// no author was written. This pins the first-colon rule as a known limitation.
func TestSplitSender_ColonBearingPrefix(t *testing.T) {
	sender, text, ok := SplitSender("Reminder: the meeting moved")
	if !ok || sender != "Reminder" || text != "the meeting moved" {
		t.Errorf("SplitSender() = (%q, %q, %v)", sender, text, ok)
	}
}

func TestJoinLines(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"one line", "one line"},
		{"first\nsecond", "first second"},
		{"first\r\n  second \n\nthird", "first second third"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := JoinLines(tt.in); got != tt.want {
			t.Errorf("JoinLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
