// Package board models the collaborative whiteboard the reconcilers mirror
// projects onto and provides a REST client for it.
package board

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an item does not exist on the board.
var ErrNotFound = errors.New("board item not found")

// ErrUnavailable is returned when no board surface is configured for this
// process.
var ErrUnavailable = unavailableErr{}

type unavailableErr struct{}

func (unavailableErr) Error() string     { return "board unavailable: no board configured" }
func (unavailableErr) Unavailable() bool { return true }

// APIError is a non-2xx response from the board API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("miro api error status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("miro api error status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Info describes the board a client talks to.
type Info struct {
	ID   string
	Name string
}

// Client is the request/response surface of the board. It performs no retries;
// discovery is only possible through List plus client-side filtering.
type Client interface {
	// Available reports ErrUnavailable when the client has no board to talk to.
	Available() error
	Info(ctx context.Context) (Info, error)
	List(ctx context.Context, kind Kind) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, item Item) (Item, error)
	Remove(ctx context.Context, id string) error
}

func ListCards(ctx context.Context, c Client) ([]*Card, error) {
	items, err := c.List(ctx, KindCard)
	if err != nil {
		return nil, err
	}
	out := make([]*Card, 0, len(items))
	for _, it := range items {
		if card, ok := it.(*Card); ok {
			out = append(out, card)
		}
	}
	return out, nil
}

func ListFrames(ctx context.Context, c Client) ([]*Frame, error) {
	items, err := c.List(ctx, KindFrame)
	if err != nil {
		return nil, err
	}
	out := make([]*Frame, 0, len(items))
	for _, it := range items {
		if f, ok := it.(*Frame); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func ListShapes(ctx context.Context, c Client) ([]*Shape, error) {
	items, err := c.List(ctx, KindShape)
	if err != nil {
		return nil, err
	}
	out := make([]*Shape, 0, len(items))
	for _, it := range items {
		if s, ok := it.(*Shape); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetFrame fetches a frame by id. A non-frame item is reported as ErrNotFound.
func GetFrame(ctx context.Context, c Client, id string) (*Frame, error) {
	it, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f, ok := it.(*Frame)
	if !ok {
		return nil, fmt.Errorf("item %s is a %s: %w", id, it.ItemKind(), ErrNotFound)
	}
	return f, nil
}
