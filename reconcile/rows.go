package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"board-sync/board"
	"board-sync/domain"
)

// Row is a project's detail surfaces, reconstructed from frame titles.
type Row struct {
	ProjectID string
	Name      string
	Briefing  *board.Frame
	Stages    []*board.Frame
}

// Last returns the right-most frame of the row: the last stage, or the
// briefing when the row has no stage yet.
func (r *Row) Last() *board.Frame {
	if len(r.Stages) > 0 {
		return r.Stages[len(r.Stages)-1]
	}
	return r.Briefing
}

func (r *Row) nextStage() int {
	n := 0
	for _, f := range r.Stages {
		if tag, ok := board.ParseFrameTitle(f.Title); ok && tag.Stage > n {
			n = tag.Stage
		}
	}
	return n + 1
}

type timelineLocator interface {
	FindTimeline(ctx context.Context, s *Session) (*Timeline, error)
}

// RowEngine lays out briefing and stage frames. Row placement is derived from
// the frames currently on the board, never from memory, so two instances
// looking at the same board agree on it. Concurrent row creations for
// different projects are not coordinated and may pick the same row.
type RowEngine struct {
	board    board.Client
	timeline timelineLocator
	logger   *log.Logger
}

func NewRowEngine(c board.Client, tl timelineLocator, logger *log.Logger) *RowEngine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RowEngine{board: c, timeline: tl, logger: logger}
}

// EnsureRow returns the project's row, creating it when none exists. An
// existing row gets its status badge refreshed; a row left without stages by
// an interrupted creation is completed first.
func (e *RowEngine) EnsureRow(ctx context.Context, s *Session, p domain.Project) (*Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	row, err := e.locate(ctx, s, p.ID, p.Name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return e.createRow(ctx, s, p)
	}
	if row.Briefing != nil && len(row.Stages) == 0 {
		return e.completeRow(ctx, s, p, row)
	}
	if !e.UpdateStatusBadge(ctx, s, p) {
		e.logger.WithField("project", p.ID).Warn("status badge not updated")
	}
	return row, nil
}

// completeRow redraws whatever briefing content is missing from row and
// appends stage 1.
func (e *RowEngine) completeRow(ctx context.Context, s *Session, p domain.Project, row *Row) (*Row, error) {
	logger := e.logger.WithFields(log.Fields{"project": p.ID, "briefing": row.Briefing.ID})
	existing, err := itemsInside(ctx, e.board, row.Briefing.Geometry)
	if err != nil {
		return row, fmt.Errorf("read briefing %s: %w", row.Briefing.ID, err)
	}
	badge, err := drawBriefing(ctx, e.board, row.Briefing, p, existing)
	if err != nil {
		return row, fmt.Errorf("redraw briefing %s: %w", row.Briefing.ID, err)
	}
	if badge != nil && !e.relabelStatusBadge(ctx, s, p, badge) {
		logger.Warn("status badge not updated")
	}
	stage, err := e.appendStage(ctx, row, row.Briefing)
	if err != nil {
		return row, err
	}
	logger.WithField("stage", stage.ID).Info("project row completed")
	return row, nil
}

// locate rediscovers a project's frames by title. The session row, when
// present, only supplies the name to search for.
func (e *RowEngine) locate(ctx context.Context, s *Session, projectID, name string) (*Row, error) {
	if name == "" {
		if cached := s.row(projectID); cached != nil {
			name = cached.Name
		}
	}
	if name == "" {
		return nil, nil
	}
	frames, err := board.ListFrames(ctx, e.board)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	row := rowFromFrames(frames, projectID, name)
	if row == nil {
		s.forgetRow(projectID)
		return nil, nil
	}
	s.rememberRow(projectID, row)
	return row, nil
}

func rowFromFrames(frames []*board.Frame, projectID, name string) *Row {
	row := &Row{ProjectID: projectID, Name: name}
	stageNo := map[string]int{}
	for _, f := range frames {
		tag, ok := board.ParseFrameTitle(f.Title)
		if !ok || !tag.MatchesProject(name) {
			continue
		}
		switch tag.Kind {
		case board.TagBriefing:
			if row.Briefing == nil {
				row.Briefing = f
			}
		case board.TagStage:
			row.Stages = append(row.Stages, f)
			stageNo[f.ID] = tag.Stage
		}
	}
	if row.Briefing == nil && len(row.Stages) == 0 {
		return nil
	}
	sort.SliceStable(row.Stages, func(i, j int) bool {
		return stageNo[row.Stages[i].ID] < stageNo[row.Stages[j].ID]
	})
	return row
}

// nextRowTop scans every briefing frame on the board and returns the top y of
// the next row.
func nextRowTop(frames []*board.Frame, tl *Timeline) float64 {
	found := false
	bottom := 0.0
	for _, f := range frames {
		if !board.IsBriefingTitle(f.Title) {
			continue
		}
		if b := f.Y + f.Height/2; !found || b > bottom {
			bottom = b
			found = true
		}
	}
	if found {
		return bottom + rowGap
	}
	if tl != nil {
		return tl.Frame.Top()
	}
	return timelineOriginY
}

func (e *RowEngine) rowOriginX(ctx context.Context, s *Session) (float64, *Timeline) {
	tl, err := e.timeline.FindTimeline(ctx, s)
	if err != nil {
		e.logger.WithError(err).Warn("timeline lookup failed, using fallback row origin")
		return fallbackRowX, nil
	}
	if tl == nil {
		return fallbackRowX, nil
	}
	return tl.Frame.Right() + rowOffsetX, tl
}

func (e *RowEngine) createRow(ctx context.Context, s *Session, p domain.Project) (*Row, error) {
	originX, tl := e.rowOriginX(ctx, s)
	frames, err := board.ListFrames(ctx, e.board)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	top := nextRowTop(frames, tl)

	brief := &board.Frame{
		Title:    board.BriefingTag(p.Name).String(),
		Geometry: board.Geometry{X: originX + briefingWidth/2, Y: top + briefingHeight/2, Width: briefingWidth, Height: briefingHeight},
		Style:    board.Style{FillColor: frameFill},
	}
	created, err := e.board.Create(ctx, brief)
	if err != nil {
		return nil, fmt.Errorf("create briefing frame: %w", err)
	}
	briefFrame, ok := created.(*board.Frame)
	if !ok {
		return nil, fmt.Errorf("create briefing frame: board returned %s", created.ItemKind())
	}
	row := &Row{ProjectID: p.ID, Name: p.Name, Briefing: briefFrame}
	s.rememberRow(p.ID, row)

	badge, err := drawBriefing(ctx, e.board, briefFrame, p, nil)
	if err != nil {
		return row, fmt.Errorf("draw briefing %s: %w", briefFrame.ID, err)
	}
	if badge != nil {
		s.rememberBadge(p.ID, badge.ID)
	}

	stage, err := e.appendStage(ctx, row, briefFrame)
	if err != nil {
		return row, err
	}
	e.logger.WithFields(log.Fields{"project": p.ID, "briefing": briefFrame.ID, "stage": stage.ID, "top": top}).Info("project row created")
	return row, nil
}

// AddStage appends a stage frame to the right of the project's last frame. It
// returns nil when the project's frames cannot be found.
func (e *RowEngine) AddStage(ctx context.Context, s *Session, projectID, projectName string) (*board.Frame, error) {
	row, err := e.locate(ctx, s, projectID, projectName)
	if err != nil {
		return nil, err
	}
	if row == nil {
		e.logger.WithFields(log.Fields{"project": projectID, "name": projectName}).Warn("no frames found for project, stage not added")
		return nil, nil
	}
	// The previous frame may have been resized by hand; use its current size.
	prev, err := board.GetFrame(ctx, e.board, row.Last().ID)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			s.forgetRow(projectID)
			return nil, nil
		}
		return nil, fmt.Errorf("refresh frame %s: %w", row.Last().ID, err)
	}
	return e.appendStage(ctx, row, prev)
}

func (e *RowEngine) appendStage(ctx context.Context, row *Row, prev *board.Frame) (*board.Frame, error) {
	n := row.nextStage()
	stage := &board.Frame{
		Title: board.StageTag(row.Name, n).String(),
		Geometry: board.Geometry{
			X:      prev.Right() + stageGap + stageWidth/2,
			Y:      prev.Top() + stageHeight/2,
			Width:  stageWidth,
			Height: stageHeight,
		},
		Style: board.Style{FillColor: frameFill},
	}
	created, err := e.board.Create(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("create stage %d: %w", n, err)
	}
	f, ok := created.(*board.Frame)
	if !ok {
		return nil, fmt.Errorf("create stage %d: board returned %s", n, created.ItemKind())
	}
	row.Stages = append(row.Stages, f)
	e.logger.WithFields(log.Fields{"project": row.ProjectID, "stage": n, "frame": f.ID}).Info("stage added")
	return f, nil
}
