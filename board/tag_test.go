package board

import "testing"

func TestCardTagFormatAndParse(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want Tag
		ok   bool
	}{
		{name: "plain", desc: "projectId:abc-123", want: CardTag("abc-123", false), ok: true},
		{name: "reviewed", desc: "projectId:abc|reviewed:true", want: CardTag("abc", true), ok: true},
		{name: "html wrapped", desc: "<p>projectId:abc|reviewed:true</p>", want: CardTag("abc", true), ok: true},
		{name: "escaped separator", desc: "<p>projectId:p1&#124;reviewed:true</p>", want: CardTag("p1", true), ok: true},
		{name: "paragraph per field", desc: "<p>Brief</p><p>projectId:p2</p>", want: CardTag("p2", false), ok: true},
		{name: "embedded in text", desc: "Client brief\nprojectId:xyz trailing", want: CardTag("xyz", false), ok: true},
		{name: "missing", desc: "just a note", ok: false},
		{name: "empty id", desc: "projectId:", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCardTag(tt.desc)
			if ok != tt.ok {
				t.Fatalf("ParseCardTag(%q) ok = %t, want %t", tt.desc, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("ParseCardTag(%q) = %#v, want %#v", tt.desc, got, tt.want)
			}
		})
	}
	if s := CardTag("p1", true).String(); s != "projectId:p1|reviewed:true" {
		t.Fatalf("unexpected card tag %q", s)
	}
}

func TestFrameTitleFormatAndParse(t *testing.T) {
	if s := BriefingTag("Launch").String(); s != "Launch - BRIEFING" {
		t.Fatalf("briefing title %q", s)
	}
	if s := StageTag("Launch", 3).String(); s != "Launch - STAGE 3" {
		t.Fatalf("stage title %q", s)
	}
	tag, ok := ParseFrameTitle("Spring - Campaign - STAGE 12")
	if !ok || tag.Kind != TagStage || tag.Stage != 12 || tag.Name != "Spring - Campaign" {
		t.Fatalf("unexpected stage tag %#v", tag)
	}
	tag, ok = ParseFrameTitle("<p>Launch - BRIEFING</p>")
	if !ok || tag.Kind != TagBriefing || !tag.MatchesProject("launch") {
		t.Fatalf("unexpected briefing tag %#v", tag)
	}
	tag, ok = ParseFrameTitle("<p>R&amp;D Launch - BRIEFING</p>")
	if !ok || tag.Name != "R&D Launch" || !tag.MatchesProject("R&D Launch") {
		t.Fatalf("entity not decoded in %#v", tag)
	}
	tag, ok = ParseFrameTitle("Q&amp;A - STAGE 2")
	if !ok || tag.Kind != TagStage || tag.Name != "Q&A" || tag.Stage != 2 {
		t.Fatalf("unexpected stage tag %#v", tag)
	}
	for _, title := range []string{"Project Timeline", " - BRIEFING", "X - STAGE zero", "X - STAGE 0"} {
		if _, ok := ParseFrameTitle(title); ok {
			t.Fatalf("title %q should not parse", title)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"<p>a</p>", " a "},
		{"<p>R&amp;D</p><br/>", " R&D  "},
		{"Fish &amp; Chips", "Fish & Chips"},
		{"&lt;b&gt;", "<b>"},
		{"1 < 2", "1 < 2"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Fatalf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
