package board

// Kind identifies a board item type.
type Kind string

const (
	KindCard  Kind = "card"
	KindFrame Kind = "frame"
	KindShape Kind = "shape"
	KindText  Kind = "text"
)

// Geometry is a center-based rectangle in absolute board coordinates.
type Geometry struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (g Geometry) Left() float64   { return g.X - g.Width/2 }
func (g Geometry) Right() float64  { return g.X + g.Width/2 }
func (g Geometry) Top() float64    { return g.Y - g.Height/2 }
func (g Geometry) Bottom() float64 { return g.Y + g.Height/2 }

// Contains reports whether the point (x, y) lies inside g, edges included.
func (g Geometry) Contains(x, y float64) bool {
	return x >= g.Left() && x <= g.Right() && y >= g.Top() && y <= g.Bottom()
}

// Style holds the visual attributes the reconcilers read or write. Fields not
// meaningful for an item kind are left empty.
type Style struct {
	FillColor   string
	BorderColor string
	TextColor   string
	FontSize    int
	CardTheme   string
}

// Item is implemented by every board item kind. The set of kinds is closed.
type Item interface {
	ItemID() string
	ItemKind() Kind
	Bounds() Geometry
	isItem()
}

type Card struct {
	ID          string
	Title       string
	Description string
	Geometry
	Style Style
}

type Frame struct {
	ID    string
	Title string
	Geometry
	Style Style
}

// Shape is a rectangle-like item with text content. Badges, headers and drop
// zones are shapes.
type Shape struct {
	ID      string
	Shape   string
	Content string
	Geometry
	Style Style
}

type Text struct {
	ID      string
	Content string
	Geometry
	Style Style
}

func (c *Card) ItemID() string    { return c.ID }
func (c *Card) ItemKind() Kind    { return KindCard }
func (c *Card) Bounds() Geometry  { return c.Geometry }
func (*Card) isItem()             {}
func (f *Frame) ItemID() string   { return f.ID }
func (f *Frame) ItemKind() Kind   { return KindFrame }
func (f *Frame) Bounds() Geometry { return f.Geometry }
func (*Frame) isItem()            {}
func (s *Shape) ItemID() string   { return s.ID }
func (s *Shape) ItemKind() Kind   { return KindShape }
func (s *Shape) Bounds() Geometry { return s.Geometry }
func (*Shape) isItem()            {}
func (t *Text) ItemID() string    { return t.ID }
func (t *Text) ItemKind() Kind    { return KindText }
func (t *Text) Bounds() Geometry  { return t.Geometry }
func (*Text) isItem()             {}

// Clone returns a deep copy of item.
func Clone(item Item) Item {
	switch it := item.(type) {
	case *Card:
		c := *it
		return &c
	case *Frame:
		c := *it
		return &c
	case *Shape:
		c := *it
		return &c
	case *Text:
		c := *it
		return &c
	default:
		return nil
	}
}
