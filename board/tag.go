package board

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// TagKind says which surface a tag belongs to.
type TagKind string

const (
	TagCard     TagKind = "card"
	TagBriefing TagKind = "briefing"
	TagStage    TagKind = "stage"
)

const (
	projectIDKey     = "projectId"
	reviewedKey      = "reviewed"
	briefingSuffix   = " - BRIEFING"
	stageSuffixStart = " - STAGE "
)

// Tag is the typed record embedded in the only free-text channels the board
// offers: card descriptions and frame titles.
type Tag struct {
	Kind      TagKind
	ProjectID string
	Name      string
	Stage     int
	Reviewed  bool
}

// CardTag returns the tag stored on a project's timeline card.
func CardTag(projectID string, reviewed bool) Tag {
	return Tag{Kind: TagCard, ProjectID: projectID, Reviewed: reviewed}
}

// BriefingTag returns the tag carried by a project's briefing frame title.
func BriefingTag(name string) Tag {
	return Tag{Kind: TagBriefing, Name: name}
}

// StageTag returns the tag carried by the n-th stage frame title.
func StageTag(name string, n int) Tag {
	return Tag{Kind: TagStage, Name: name, Stage: n}
}

// String formats the tag for its channel.
func (t Tag) String() string {
	switch t.Kind {
	case TagCard:
		s := projectIDKey + ":" + t.ProjectID
		if t.Reviewed {
			s += "|" + reviewedKey + ":true"
		}
		return s
	case TagBriefing:
		return t.Name + briefingSuffix
	case TagStage:
		return t.Name + stageSuffixStart + strconv.Itoa(t.Stage)
	default:
		return ""
	}
}

// ParseCardTag extracts a card tag from a description. Rich-text wrapping the
// board adds around descriptions is ignored.
func ParseCardTag(description string) (Tag, bool) {
	text := PlainText(description)
	idx := strings.Index(text, projectIDKey+":")
	if idx < 0 {
		return Tag{}, false
	}
	rest := text[idx+len(projectIDKey)+1:]
	fields := strings.Split(rest, "|")
	id := strings.TrimSpace(fields[0])
	if sp := strings.IndexAny(id, " \t\n"); sp >= 0 {
		id = id[:sp]
	}
	if id == "" {
		return Tag{}, false
	}
	tag := CardTag(id, false)
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(f), ":")
		if ok && k == reviewedKey {
			tag.Reviewed = strings.HasPrefix(v, "true")
		}
	}
	return tag, true
}

// ParseFrameTitle extracts a briefing or stage tag from a frame title.
func ParseFrameTitle(title string) (Tag, bool) {
	title = strings.TrimSpace(PlainText(title))
	if name, ok := strings.CutSuffix(title, briefingSuffix); ok && name != "" {
		return BriefingTag(name), true
	}
	idx := strings.LastIndex(title, stageSuffixStart)
	if idx <= 0 {
		return Tag{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(title[idx+len(stageSuffixStart):]))
	if err != nil || n <= 0 {
		return Tag{}, false
	}
	return StageTag(title[:idx], n), true
}

// IsBriefingTitle reports whether a frame title carries the briefing marker.
func IsBriefingTitle(title string) bool {
	return strings.Contains(title, briefingSuffix)
}

// MatchesProject reports whether a frame tag belongs to the named project.
func (t Tag) MatchesProject(name string) bool {
	return (t.Kind == TagBriefing || t.Kind == TagStage) && strings.EqualFold(t.Name, strings.TrimSpace(name))
}

// PlainText drops the HTML markup the board wraps around rich-text fields
// and decodes entities. Each tag becomes a single space.
func PlainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
