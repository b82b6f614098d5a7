package board

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	defaultBaseURL = "https://api.miro.com/v2"
	listPageLimit  = 50
)

// RESTClient talks to the Miro v2 REST API for a single board.
type RESTClient struct {
	baseURL string
	token   string
	boardID string
	http    *http.Client
}

// NewRESTClient creates a client for boardID. An empty baseURL selects the
// public API endpoint.
func NewRESTClient(baseURL, token, boardID string, timeout time.Duration) *RESTClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		boardID: boardID,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) Available() error {
	if c == nil || c.token == "" || c.boardID == "" {
		return ErrUnavailable
	}
	return nil
}

type position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Origin string  `json:"origin,omitempty"`
}

type geometry struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type itemData struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	Shape       string `json:"shape,omitempty"`
	Format      string `json:"format,omitempty"`
	Type        string `json:"type,omitempty"`
}

type itemStyle struct {
	CardTheme   string `json:"cardTheme,omitempty"`
	FillColor   string `json:"fillColor,omitempty"`
	BorderColor string `json:"borderColor,omitempty"`
	Color       string `json:"color,omitempty"`
	FontSize    string `json:"fontSize,omitempty"`
}

type wireItem struct {
	ID       string     `json:"id,omitempty"`
	Type     string     `json:"type,omitempty"`
	Data     *itemData  `json:"data,omitempty"`
	Style    *itemStyle `json:"style,omitempty"`
	Position *position  `json:"position,omitempty"`
	Geometry *geometry  `json:"geometry,omitempty"`
}

type listResponse struct {
	Data   []wireItem `json:"data"`
	Cursor string     `json:"cursor"`
}

type errorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *RESTClient) Info(ctx context.Context) (Info, error) {
	if err := c.Available(); err != nil {
		return Info{}, err
	}
	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, c.boardPath(), nil, &out); err != nil {
		return Info{}, err
	}
	return Info{ID: out.ID, Name: out.Name}, nil
}

// List pages through every item of kind on the board.
func (c *RESTClient) List(ctx context.Context, kind Kind) ([]Item, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	var items []Item
	cursor := ""
	for {
		q := url.Values{}
		q.Set("type", string(kind))
		q.Set("limit", strconv.Itoa(listPageLimit))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var page listResponse
		if err := c.do(ctx, http.MethodGet, c.boardPath()+"/items?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Data {
			if w.Type == "" {
				w.Type = string(kind)
			}
			if it := fromWire(w); it != nil {
				items = append(items, it)
			}
		}
		if page.Cursor == "" || len(page.Data) == 0 {
			return items, nil
		}
		cursor = page.Cursor
	}
}

func (c *RESTClient) Get(ctx context.Context, id string) (Item, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	var w wireItem
	if err := c.do(ctx, http.MethodGet, c.boardPath()+"/items/"+url.PathEscape(id), nil, &w); err != nil {
		return nil, err
	}
	it := fromWire(w)
	if it == nil {
		return nil, fmt.Errorf("item %s has unsupported type %q: %w", id, w.Type, ErrNotFound)
	}
	return it, nil
}

func (c *RESTClient) Create(ctx context.Context, item Item) (Item, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	w := toWire(item)
	w.ID = ""
	var out wireItem
	if err := c.do(ctx, http.MethodPost, c.boardPath()+"/"+collection(item.ItemKind()), w, &out); err != nil {
		return nil, err
	}
	if out.Type == "" {
		out.Type = string(item.ItemKind())
	}
	return fromWire(out), nil
}

func (c *RESTClient) Update(ctx context.Context, item Item) (Item, error) {
	if err := c.Available(); err != nil {
		return nil, err
	}
	if item.ItemID() == "" {
		return nil, fmt.Errorf("update %s: missing item id", item.ItemKind())
	}
	w := toWire(item)
	w.ID = ""
	var out wireItem
	path := c.boardPath() + "/" + collection(item.ItemKind()) + "/" + url.PathEscape(item.ItemID())
	if err := c.do(ctx, http.MethodPatch, path, w, &out); err != nil {
		return nil, err
	}
	if out.Type == "" {
		out.Type = string(item.ItemKind())
	}
	return fromWire(out), nil
}

func (c *RESTClient) Remove(ctx context.Context, id string) error {
	if err := c.Available(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, c.boardPath()+"/items/"+url.PathEscape(id), nil, nil)
}

func (c *RESTClient) boardPath() string {
	return "/boards/" + url.PathEscape(c.boardID)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if len(raw) > 0 && sonic.ConfigStd.Unmarshal(raw, &er) == nil {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

func collection(kind Kind) string {
	switch kind {
	case KindCard:
		return "cards"
	case KindFrame:
		return "frames"
	case KindShape:
		return "shapes"
	default:
		return "texts"
	}
}

func toWire(item Item) wireItem {
	w := wireItem{ID: item.ItemID(), Type: string(item.ItemKind())}
	g := item.Bounds()
	w.Position = &position{X: g.X, Y: g.Y, Origin: "center"}
	w.Geometry = &geometry{Width: g.Width, Height: g.Height}
	switch it := item.(type) {
	case *Card:
		w.Data = &itemData{Title: it.Title, Description: it.Description}
		w.Style = &itemStyle{CardTheme: it.Style.CardTheme}
	case *Frame:
		w.Data = &itemData{Title: it.Title, Format: "custom", Type: "freeform"}
		w.Style = &itemStyle{FillColor: it.Style.FillColor}
	case *Shape:
		shape := it.Shape
		if shape == "" {
			shape = "rectangle"
		}
		w.Data = &itemData{Content: it.Content, Shape: shape}
		w.Style = wireStyle(it.Style)
	case *Text:
		w.Data = &itemData{Content: it.Content}
		w.Style = &itemStyle{Color: it.Style.TextColor, FontSize: fontSize(it.Style.FontSize)}
		// texts only accept a width
		w.Geometry.Height = 0
	}
	return w
}

func wireStyle(s Style) *itemStyle {
	return &itemStyle{
		FillColor:   s.FillColor,
		BorderColor: s.BorderColor,
		Color:       s.TextColor,
		FontSize:    fontSize(s.FontSize),
	}
}

func fontSize(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func fromWire(w wireItem) Item {
	var g Geometry
	if w.Position != nil {
		g.X, g.Y = w.Position.X, w.Position.Y
	}
	if w.Geometry != nil {
		g.Width, g.Height = w.Geometry.Width, w.Geometry.Height
	}
	data := itemData{}
	if w.Data != nil {
		data = *w.Data
	}
	style := Style{}
	if w.Style != nil {
		size, _ := strconv.Atoi(w.Style.FontSize)
		style = Style{
			FillColor:   w.Style.FillColor,
			BorderColor: w.Style.BorderColor,
			TextColor:   w.Style.Color,
			FontSize:    size,
			CardTheme:   w.Style.CardTheme,
		}
	}
	switch Kind(w.Type) {
	case KindCard:
		return &Card{ID: w.ID, Title: data.Title, Description: data.Description, Geometry: g, Style: style}
	case KindFrame:
		return &Frame{ID: w.ID, Title: data.Title, Geometry: g, Style: style}
	case KindShape:
		return &Shape{ID: w.ID, Shape: data.Shape, Content: data.Content, Geometry: g, Style: style}
	case KindText:
		return &Text{ID: w.ID, Content: data.Content, Geometry: g, Style: style}
	default:
		return nil
	}
}
