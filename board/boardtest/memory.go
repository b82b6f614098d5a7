// Package boardtest provides an in-memory board.Client for tests.
package boardtest

import (
	"context"
	"fmt"
	"sync"

	"board-sync/board"
)

// Board is an in-memory board. Items are listed in creation order.
type Board struct {
	mu          sync.Mutex
	items       map[string]board.Item
	order       []string
	next        int
	unavailable bool
	failures    map[string][]error
	calls       map[string]int

	// BeforeCreate, when set, runs before every Create with the lock released.
	BeforeCreate func(item board.Item)
}

func New() *Board {
	return &Board{
		items:    map[string]board.Item{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}
}

// SetUnavailable toggles whether Available reports board.ErrUnavailable.
func (b *Board) SetUnavailable(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unavailable = v
}

// FailNext queues errors returned by the next calls of op ("list", "get",
// "create", "update", "remove").
func (b *Board) FailNext(op string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], errs...)
}

// Calls returns how many times op was invoked.
func (b *Board) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Put stores item as-is, assigning an id when it has none. It bypasses
// failure injection and is meant for seeding out-of-band edits.
func (b *Board) Put(item board.Item) board.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putLocked(item)
}

// Mutate applies fn to the stored item with id, simulating a manual edit.
func (b *Board) Mutate(id string, fn func(board.Item)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if it, ok := b.items[id]; ok {
		fn(it)
	}
}

// Items returns copies of all items of kind.
func (b *Board) Items(kind board.Kind) []board.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []board.Item
	for _, id := range b.order {
		if it := b.items[id]; it.ItemKind() == kind {
			out = append(out, board.Clone(it))
		}
	}
	return out
}

// Cards returns copies of all cards.
func (b *Board) Cards() []*board.Card {
	var out []*board.Card
	for _, it := range b.Items(board.KindCard) {
		out = append(out, it.(*board.Card))
	}
	return out
}

func (b *Board) Available() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return board.ErrUnavailable
	}
	return nil
}

func (b *Board) Info(ctx context.Context) (board.Info, error) {
	if err := b.begin("info"); err != nil {
		return board.Info{}, err
	}
	return board.Info{ID: "memory", Name: "In-memory board"}, nil
}

func (b *Board) List(ctx context.Context, kind board.Kind) ([]board.Item, error) {
	if err := b.begin("list"); err != nil {
		return nil, err
	}
	return b.Items(kind), nil
}

func (b *Board) Get(ctx context.Context, id string) (board.Item, error) {
	if err := b.begin("get"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, board.ErrNotFound)
	}
	return board.Clone(it), nil
}

func (b *Board) Create(ctx context.Context, item board.Item) (board.Item, error) {
	if err := b.begin("create"); err != nil {
		return nil, err
	}
	if b.BeforeCreate != nil {
		b.BeforeCreate(item)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := board.Clone(item)
	setID(cp, "")
	return board.Clone(b.putLocked(cp)), nil
}

func (b *Board) Update(ctx context.Context, item board.Item) (board.Item, error) {
	if err := b.begin("update"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.items[item.ItemID()]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", item.ItemID(), board.ErrNotFound)
	}
	if cur.ItemKind() != item.ItemKind() {
		return nil, &board.APIError{StatusCode: 400, Message: "item type mismatch"}
	}
	b.items[item.ItemID()] = board.Clone(item)
	return board.Clone(item), nil
}

func (b *Board) Remove(ctx context.Context, id string) error {
	if err := b.begin("remove"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, board.ErrNotFound)
	}
	delete(b.items, id)
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Board) begin(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if b.unavailable {
		return board.ErrUnavailable
	}
	if q := b.failures[op]; len(q) > 0 {
		err := q[0]
		b.failures[op] = q[1:]
		return err
	}
	return nil
}

func (b *Board) putLocked(item board.Item) board.Item {
	if item.ItemID() == "" {
		b.next++
		setID(item, fmt.Sprintf("%s-%d", item.ItemKind(), b.next))
	}
	if _, exists := b.items[item.ItemID()]; !exists {
		b.order = append(b.order, item.ItemID())
	}
	b.items[item.ItemID()] = item
	return item
}

func setID(item board.Item, id string) {
	switch it := item.(type) {
	case *board.Card:
		it.ID = id
	case *board.Frame:
		it.ID = id
	case *board.Shape:
		it.ID = id
	case *board.Text:
		it.ID = id
	}
}
