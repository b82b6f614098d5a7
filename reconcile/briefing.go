package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"board-sync/board"
	"board-sync/domain"
)

const creativeDirectionField = "creative_direction"

var typeKeywords = []struct {
	label string
	words []string
}{
	{"VIDEO", []string{"video", "film", "reel", "motion", "animation"}},
	{"SOCIAL", []string{"social", "instagram", "tiktok", "post", "feed", "stories"}},
	{"BRANDING", []string{"brand", "branding", "logo", "identity"}},
	{"WEB", []string{"web", "website", "site", "landing", "ui", "ux"}},
	{"PRINT", []string{"print", "poster", "flyer", "brochure", "packaging"}},
}

const defaultProjectType = "GENERAL"

// inferProjectType picks the badge label for the project type. An explicit
// project_type briefing field wins over keyword matching.
func inferProjectType(p domain.Project) string {
	if t := strings.TrimSpace(p.Briefing["project_type"]); t != "" {
		return strings.ToUpper(t)
	}
	words := map[string]bool{}
	add := func(s string) {
		for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) }) {
			words[w] = true
		}
	}
	add(p.Name)
	for _, k := range sortedKeys(p.Briefing) {
		add(p.Briefing[k])
	}
	for _, tk := range typeKeywords {
		for _, w := range tk.words {
			if words[w] {
				return tk.label
			}
		}
	}
	return defaultProjectType
}

func dueLabel(p domain.Project) string {
	if p.DueDate == nil {
		return "NO DUE DATE"
	}
	return "DUE " + strings.ToUpper(p.DueDate.Format("Jan 2"))
}

func fieldLabel(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// badgeSpecs returns the four badges in their fixed left-to-right order:
// priority, type, status, due date.
func badgeSpecs(p domain.Project) []board.Style {
	return []board.Style{
		{FillColor: priorityColor(p.Priority), TextColor: fieldTextColor},
		{FillColor: typeBadgeFill, TextColor: lightTextColor},
		{FillColor: statusColors[p.Status], TextColor: lightTextColor},
		{FillColor: dueBadgeFill, TextColor: lightTextColor},
	}
}

// statusBadgeIndex is the position of the status badge in the badge row.
const statusBadgeIndex = 2

// layoutPart is one item drawn inside a frame, named for error messages.
type layoutPart struct {
	name string
	item board.Item
}

// layoutParts lays out the header bar, badge row, field grid and creative
// direction zone of frame. The status badge is parts[1+statusBadgeIndex].
func layoutParts(frame *board.Frame, p domain.Project) []layoutPart {
	left := frame.Left() + briefingPadding
	inner := frame.Width - 2*briefingPadding

	header := &board.Shape{
		Shape:    "rectangle",
		Content:  strings.TrimSpace(p.Name),
		Geometry: board.Geometry{X: frame.X, Y: frame.Top() + briefingPadding + briefingHeaderH/2, Width: inner, Height: briefingHeaderH},
		Style:    board.Style{FillColor: headerFill, TextColor: lightTextColor, FontSize: 36},
	}
	parts := []layoutPart{{"header", header}}

	badgeY := header.Bottom() + badgeRowOffset + badgeHeight/2
	labels := []string{p.Priority.Label(), inferProjectType(p), p.Status.Label(), dueLabel(p)}
	for i, style := range badgeSpecs(p) {
		style.FontSize = 16
		parts = append(parts, layoutPart{fmt.Sprintf("badge %q", labels[i]), &board.Shape{
			Shape:    "round_rectangle",
			Content:  labels[i],
			Geometry: board.Geometry{X: left + badgeWidth/2 + float64(i)*(badgeWidth+badgeGap), Y: badgeY, Width: badgeWidth, Height: badgeHeight},
			Style:    style,
		}})
	}

	gridTop := badgeY + badgeHeight/2 + badgeRowOffset
	keys := fieldKeys(p.Briefing)
	for i, key := range keys {
		col, row := i%fieldGridColumns, i/fieldGridColumns
		parts = append(parts, layoutPart{"field " + key, &board.Text{
			Content: fieldLabel(key) + ": " + p.Briefing[key],
			Geometry: board.Geometry{
				X:     left + fieldColumnWidth/2 + float64(col)*(fieldColumnWidth+badgeGap),
				Y:     gridTop + fieldRowHeight/2 + float64(row)*fieldRowHeight,
				Width: fieldColumnWidth,
			},
			Style: board.Style{TextColor: fieldTextColor, FontSize: 16},
		}})
	}
	rows := (len(keys) + fieldGridColumns - 1) / fieldGridColumns

	zoneTop := gridTop + float64(rows)*fieldRowHeight + badgeRowOffset
	zoneBottom := frame.Bottom() - briefingPadding
	if zoneBottom-zoneTop < fieldRowHeight {
		zoneTop = zoneBottom - fieldRowHeight
	}
	return append(parts, layoutPart{"creative zone", &board.Shape{
		Shape:    "rectangle",
		Content:  creativeZoneTitle + "\n" + strings.TrimSpace(p.Briefing[creativeDirectionField]),
		Geometry: board.Geometry{X: frame.X, Y: (zoneTop + zoneBottom) / 2, Width: inner, Height: zoneBottom - zoneTop},
		Style:    board.Style{FillColor: creativeFill, BorderColor: headerFill, TextColor: fieldTextColor, FontSize: 18},
	}})
}

// drawBriefing fills a briefing frame with its header bar, badge row, field
// grid and creative direction zone, skipping every part already drawn in
// existing. It returns the status badge.
func drawBriefing(ctx context.Context, c board.Client, frame *board.Frame, p domain.Project, existing []board.Item) (*board.Shape, error) {
	var status *board.Shape
	for i, part := range layoutParts(frame, p) {
		it := itemAt(existing, part.item)
		if it == nil {
			created, err := c.Create(ctx, part.item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", part.name, err)
			}
			it = created
		}
		if i == 1+statusBadgeIndex {
			status, _ = it.(*board.Shape)
		}
	}
	return status, nil
}

// itemAt returns the item of want's kind centered where want would be drawn.
func itemAt(items []board.Item, want board.Item) board.Item {
	g := want.Bounds()
	for _, it := range items {
		if it.ItemKind() != want.ItemKind() {
			continue
		}
		b := it.Bounds()
		if math.Abs(b.X-g.X) <= drawnItemTolerance && math.Abs(b.Y-g.Y) <= drawnItemTolerance {
			return it
		}
	}
	return nil
}

// itemsInside lists the shapes and texts whose center lies inside area.
func itemsInside(ctx context.Context, c board.Client, area board.Geometry) ([]board.Item, error) {
	var out []board.Item
	for _, kind := range []board.Kind{board.KindShape, board.KindText} {
		items, err := c.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %ss: %w", kind, err)
		}
		for _, it := range items {
			if b := it.Bounds(); area.Contains(b.X, b.Y) {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

// fieldKeys lists briefing fields shown in the grid, in stable order.
func fieldKeys(b map[string]string) []string {
	var keys []string
	for _, k := range sortedKeys(b) {
		if k == creativeDirectionField || k == "project_type" || strings.TrimSpace(b[k]) == "" {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}
