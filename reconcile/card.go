package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"board-sync/board"
	"board-sync/domain"
)

// cardTitle renders the multi-line card title, the only durable carrier of the
// project's display fields on the board.
func cardTitle(p domain.Project, reviewed bool, now time.Time) string {
	head := priorityGlyph(p.Priority) + " " + strings.TrimSpace(p.Name)
	if reviewed {
		head = reviewedTick + " " + head
	}
	lines := []string{head}
	if p.ClientName != "" {
		lines = append(lines, "Client: "+p.ClientName)
	}
	if p.DueDate != nil {
		lines = append(lines, fmt.Sprintf("Due: %s (%s)", p.DueDate.Format("Jan 2"), countdown(*p.DueDate, now)))
	}
	return strings.Join(lines, "\n")
}

// countdown renders the distance from now to due in whole calendar days.
func countdown(due, now time.Time) string {
	days := calendarDays(now, due)
	switch {
	case days < 0:
		return fmt.Sprintf("%dd late", -days)
	case days == 0:
		return "Today"
	default:
		return fmt.Sprintf("%dd", days)
	}
}

func calendarDays(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// findProjectCard returns the first card tagged with projectID.
func findProjectCard(cards []*board.Card, projectID string) *board.Card {
	for _, c := range cards {
		if tag, ok := board.ParseCardTag(c.Description); ok && tag.ProjectID == projectID {
			return c
		}
	}
	return nil
}

func cardByID(cards []*board.Card, id string) *board.Card {
	for _, c := range cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// occupants counts cards sitting in col, ignoring the card with ownID.
func occupants(cards []*board.Card, col Column, ownID string) int {
	n := 0
	for _, c := range cards {
		if c.ID == ownID {
			continue
		}
		if col.ContainsX(c.X) {
			n++
		}
	}
	return n
}

// slotTaken reports whether a card centered at y in col would overlap another
// card of that column.
func slotTaken(cards []*board.Card, col Column, ownID string, y float64) bool {
	for _, c := range cards {
		if c.ID != ownID && col.ContainsX(c.X) && math.Abs(c.Y-y) < cardHeight {
			return true
		}
	}
	return false
}

// slotFor returns the center y for a card entering col: the slot after the
// column's other cards, moved down past any slot that is still taken.
func slotFor(cards []*board.Card, col Column, ownID string) float64 {
	n := occupants(cards, col, ownID)
	for slotTaken(cards, col, ownID, col.SlotY(n)) {
		n++
	}
	return col.SlotY(n)
}
