package reconcile

// Session carries the hints gathered during one sync session. Nothing in it is
// trusted for placement: every entry is confirmed against a fresh board read
// before use and dropped when the board disagrees.
type Session struct {
	cards    map[string]string
	rows     map[string]*Row
	badges   map[string]string
	timeline *Timeline
}

func NewSession() *Session {
	return &Session{
		cards:  map[string]string{},
		rows:   map[string]*Row{},
		badges: map[string]string{},
	}
}

func (s *Session) cardID(projectID string) string {
	if s == nil {
		return ""
	}
	return s.cards[projectID]
}

func (s *Session) rememberCard(projectID, cardID string) {
	if s != nil {
		s.cards[projectID] = cardID
	}
}

func (s *Session) forgetCard(projectID string) {
	if s != nil {
		delete(s.cards, projectID)
	}
}

func (s *Session) row(projectID string) *Row {
	if s == nil {
		return nil
	}
	return s.rows[projectID]
}

func (s *Session) rememberRow(projectID string, r *Row) {
	if s != nil && projectID != "" {
		s.rows[projectID] = r
	}
}

func (s *Session) forgetRow(projectID string) {
	if s != nil {
		delete(s.rows, projectID)
	}
}

func (s *Session) badgeID(projectID string) string {
	if s == nil {
		return ""
	}
	return s.badges[projectID]
}

func (s *Session) rememberBadge(projectID, shapeID string) {
	if s != nil && projectID != "" {
		s.badges[projectID] = shapeID
	}
}

func (s *Session) forgetBadge(projectID string) {
	if s != nil {
		delete(s.badges, projectID)
	}
}

func (s *Session) rememberTimeline(tl *Timeline) {
	if s != nil && tl != nil {
		s.timeline = tl
	}
}
