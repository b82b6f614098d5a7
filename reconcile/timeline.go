package reconcile

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"board-sync/board"
	"board-sync/domain"
)

// Column is one status lane of the timeline.
type Column struct {
	Status domain.Status
	Left   float64
	Width  float64
	Color  string
	// CardTop is the center y of the first card slot.
	CardTop float64
}

func (c Column) CenterX() float64 { return c.Left + c.Width/2 }

// ContainsX reports whether a card centered at x sits in this column.
func (c Column) ContainsX(x float64) bool {
	return x >= c.Left && x < c.Left+c.Width
}

// SlotY returns the center y of the n-th card slot, counting from zero.
func (c Column) SlotY(n int) float64 {
	return c.CardTop + float64(n)*(cardHeight+cardGap)
}

// Timeline is the column surface restored from, or created on, the board.
type Timeline struct {
	FrameID string
	Frame   board.Geometry
	Columns []Column
}

func newTimeline(frameID string, frame board.Geometry) *Timeline {
	tl := &Timeline{FrameID: frameID, Frame: frame}
	left := frame.Left() + framePadding
	cardTop := frame.Top() + framePadding + headerHeight + headerGap + cardHeight/2
	for i, st := range domain.Statuses {
		tl.Columns = append(tl.Columns, Column{
			Status:  st,
			Left:    left + float64(i)*(columnWidth+columnGap),
			Width:   columnWidth,
			Color:   statusColors[st],
			CardTop: cardTop,
		})
	}
	return tl
}

// Column returns the lane for status. Every valid status has exactly one lane.
func (t *Timeline) Column(status domain.Status) (Column, bool) {
	for _, c := range t.Columns {
		if c.Status == status {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnAt returns the lane containing x.
func (t *Timeline) ColumnAt(x float64) (Column, bool) {
	for _, c := range t.Columns {
		if c.ContainsX(x) {
			return c, true
		}
	}
	return Column{}, false
}

func isTimelineFrame(f *board.Frame) bool {
	if _, ok := board.ParseFrameTitle(f.Title); ok {
		return false
	}
	if strings.Contains(strings.ToLower(f.Title), "timeline") {
		return true
	}
	return math.Abs(f.Width-timelineWidth) <= dimensionSlack && math.Abs(f.Height-timelineHeight) <= dimensionSlack
}

// findTimeline looks the timeline frame up on the board without creating it.
func findTimeline(ctx context.Context, c board.Client) (*Timeline, error) {
	frames, err := board.ListFrames(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	for _, f := range frames {
		if isTimelineFrame(f) {
			return newTimeline(f.ID, f.Geometry), nil
		}
	}
	return nil, nil
}

// createTimeline draws the timeline frame, one header per column and one drop
// zone per column at the fixed origin.
func createTimeline(ctx context.Context, c board.Client, logger *log.Logger) (*Timeline, error) {
	geo := board.Geometry{
		X:      timelineOriginX + timelineWidth/2,
		Y:      timelineOriginY + timelineHeight/2,
		Width:  timelineWidth,
		Height: timelineHeight,
	}
	created, err := c.Create(ctx, &board.Frame{Title: timelineTitle, Geometry: geo, Style: board.Style{FillColor: frameFill}})
	if err != nil {
		return nil, fmt.Errorf("create timeline frame: %w", err)
	}
	tl := newTimeline(created.ItemID(), created.Bounds())
	if _, err := drawTimeline(ctx, c, tl, nil); err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"frame": tl.FrameID, "columns": len(tl.Columns)}).Info("timeline created")
	return tl, nil
}

// restoreTimeline redraws the headers and drop zones missing from a timeline
// frame found on the board.
func restoreTimeline(ctx context.Context, c board.Client, tl *Timeline, logger *log.Logger) error {
	existing, err := itemsInside(ctx, c, tl.Frame)
	if err != nil {
		return fmt.Errorf("read timeline %s: %w", tl.FrameID, err)
	}
	n, err := drawTimeline(ctx, c, tl, existing)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.WithFields(log.Fields{"frame": tl.FrameID, "drawn": n}).Info("timeline parts redrawn")
	}
	return nil
}

// drawTimeline draws every column header and drop zone of tl not already in
// existing and returns how many it drew.
func drawTimeline(ctx context.Context, c board.Client, tl *Timeline, existing []board.Item) (int, error) {
	n := 0
	for _, part := range timelineParts(tl) {
		if itemAt(existing, part.item) != nil {
			continue
		}
		if _, err := c.Create(ctx, part.item); err != nil {
			return n, fmt.Errorf("create %s: %w", part.name, err)
		}
		n++
	}
	return n, nil
}

func timelineParts(tl *Timeline) []layoutPart {
	headerY := tl.Frame.Top() + framePadding + headerHeight/2
	zoneTop := tl.Columns[0].CardTop - cardHeight/2 - cardGap/2
	zoneBottom := tl.Frame.Bottom() - framePadding
	parts := make([]layoutPart, 0, 2*len(tl.Columns))
	for _, col := range tl.Columns {
		parts = append(parts, layoutPart{string(col.Status) + " header", &board.Text{
			Content:  col.Status.Label(),
			Geometry: board.Geometry{X: col.CenterX(), Y: headerY, Width: col.Width},
			Style:    board.Style{TextColor: col.Color, FontSize: 24},
		}}, layoutPart{string(col.Status) + " drop zone", &board.Shape{
			Shape: "rectangle",
			Geometry: board.Geometry{
				X:      col.CenterX(),
				Y:      (zoneTop + zoneBottom) / 2,
				Width:  col.Width,
				Height: zoneBottom - zoneTop,
			},
			Style: board.Style{FillColor: dropZoneFill, BorderColor: col.Color},
		}})
	}
	return parts
}
