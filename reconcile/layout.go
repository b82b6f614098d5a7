package reconcile

import (
	"strings"

	"board-sync/domain"
)

// Timeline layout. The timeline frame is anchored at a fixed origin so that
// repeated initialization converges on the same place.
const (
	timelineTitle   = "Project Timeline"
	timelineOriginX = 0.0
	timelineOriginY = 0.0
	timelineHeight  = 2400.0
	framePadding    = 40.0
	columnWidth     = 320.0
	columnGap       = 20.0
	headerHeight    = 60.0
	headerGap       = 20.0
	cardWidth       = 280.0
	cardHeight      = 110.0
	cardGap         = 20.0
	dimensionSlack  = 1.0
)

var timelineWidth = 2*framePadding + float64(len(domain.Statuses))*columnWidth + float64(len(domain.Statuses)-1)*columnGap

// Row layout.
const (
	briefingWidth     = 1400.0
	briefingHeight    = 1000.0
	stageWidth        = 1400.0
	stageHeight       = 1000.0
	stageGap          = 100.0
	rowGap            = 200.0
	rowOffsetX        = 400.0
	fallbackRowX      = 2400.0
	briefingPadding   = 40.0
	briefingHeaderH   = 100.0
	badgeWidth        = 200.0
	badgeHeight       = 50.0
	badgeGap          = 20.0
	badgeRowOffset    = 40.0
	fieldColumnWidth  = 640.0
	fieldRowHeight    = 60.0
	fieldGridColumns  = 2
	creativeZoneTitle = "CREATIVE DIRECTION"
	badgeRowMinShapes = 3
	badgeRowMaxShapes = 7
	badgeYTolerance   = 2.0
)

// drawnItemTolerance is how far an item may sit from its drawn center and
// still count as already drawn.
const drawnItemTolerance = 2.0

// statusColors is used by timeline columns, card themes and status badges.
// No other badge uses these colors.
var statusColors = map[domain.Status]string{
	domain.StatusOverdue:    "#c62828",
	domain.StatusUrgent:     "#ef6c00",
	domain.StatusInProgress: "#1565c0",
	domain.StatusReview:     "#6a1b9a",
	domain.StatusDone:       "#2e7d32",
}

var priorityColors = map[domain.Priority]string{
	domain.PriorityUrgent: "#ff5252",
	domain.PriorityHigh:   "#ffab40",
	domain.PriorityMedium: "#ffd740",
	domain.PriorityLow:    "#69f0ae",
}

var priorityGlyphs = map[domain.Priority]string{
	domain.PriorityUrgent: "🔴",
	domain.PriorityHigh:   "🟠",
	domain.PriorityMedium: "🟡",
	domain.PriorityLow:    "🟢",
}

const (
	reviewedTick   = "✓"
	dropZoneFill   = "#f5f5f5"
	frameFill      = "#ffffff"
	headerFill     = "#212121"
	typeBadgeFill  = "#455a64"
	dueBadgeFill   = "#37474f"
	fieldTextColor = "#263238"
	lightTextColor = "#ffffff"
	creativeFill   = "#fffde7"
)

func priorityColor(p domain.Priority) string {
	if c, ok := priorityColors[p]; ok {
		return c
	}
	return priorityColors[domain.PriorityMedium]
}

func priorityGlyph(p domain.Priority) string {
	if g, ok := priorityGlyphs[p]; ok {
		return g
	}
	return priorityGlyphs[domain.PriorityMedium]
}

// statusForColor maps a status-only palette color back to its status.
func statusForColor(color string) (domain.Status, bool) {
	for st, c := range statusColors {
		if strings.EqualFold(c, color) {
			return st, true
		}
	}
	return "", false
}
