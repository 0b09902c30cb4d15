package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/larder/larder-backend/internal/ledger"
	"github.com/larder/larder-backend/internal/pantry/events"
	"github.com/larder/larder-backend/internal/pantry/repository"
	"github.com/larder/larder-backend/pkg/actor"
	"github.com/larder/larder-backend/pkg/errors"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// Item sources recorded on created events
const (
	SourceManual      = "manual"
	SourceRecognition = "recognition"
)

const defaultQueueTimeout = 2 * time.Second

// command is one unit of work for the owner goroutine. run sees the live
// collection and returns the replacement to commit, or nil to leave it alone.
type command struct {
	action string
	run    func(ctx context.Context, items ledger.Collection) (ledger.Collection, commandResult)
	ctx    context.Context
	reply  chan commandResult
}

// commandResult carries a view, a list of views, or an error back to the caller
type commandResult struct {
	view  *ItemView
	views []*ItemView
	after func(ctx context.Context)
	err   error
}

// PantryService owns the item collection. A single goroutine applies every
// read and mutation in arrival order; callers talk to it over a channel.
type PantryService struct {
	ledger    *ledger.Ledger
	store     repository.Store
	publisher *events.PantryEventPublisher
	warnDays  int
	timeout   time.Duration
	logger    *logger.Logger

	items    ledger.Collection
	commands chan command
	quit     chan struct{}
	done     chan struct{}

	// guards the lifecycle flags below
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPantryService creates a pantry service. Start must be called before use.
func NewPantryService(
	l *ledger.Ledger,
	store repository.Store,
	publisher *events.PantryEventPublisher,
	warnDays int,
	queueTimeout time.Duration,
	log *logger.Logger,
) *PantryService {
	if queueTimeout <= 0 {
		queueTimeout = defaultQueueTimeout
	}
	return &PantryService{
		ledger:    l,
		store:     store,
		publisher: publisher,
		warnDays:  warnDays,
		timeout:   queueTimeout,
		logger:    log.WithComponent("pantry_service"),
		commands:  make(chan command),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start loads the persisted collection and starts the owner goroutine.
// A service starts at most once and cannot be restarted after Close.
func (s *PantryService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Unavailable("pantry service is closed")
	}
	if s.started {
		return fmt.Errorf("pantry service already started")
	}

	items, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pantry from %s: %w", s.store.Name(), err)
	}
	if items == nil {
		items = ledger.Collection{}
	}
	s.items = items

	s.logger.Info().
		Str("store", s.store.Name()).
		Int("item_count", len(items)).
		Msg("pantry loaded")

	s.started = true
	go s.loop()
	return nil
}

// Close stops the owner goroutine and waits for the command in flight.
// Closing a service that never started returns immediately.
func (s *PantryService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	started := s.started
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

func (s *PantryService) loop() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			s.handle(cmd)
		case <-s.quit:
			return
		}
	}
}

// handle runs one command and commits its replacement collection. The
// store sees the new state before the in-memory copy is swapped, so a
// failed save leaves the pantry as it was.
func (s *PantryService) handle(cmd command) {
	next, res := cmd.run(cmd.ctx, s.items)
	if res.err == nil && next != nil {
		if err := s.store.Save(cmd.ctx, next); err != nil {
			s.logger.Error().Err(err).
				Str("action", cmd.action).
				Str("store", s.store.Name()).
				Msg("failed to persist pantry")
			res = commandResult{err: errors.Internal("failed to save pantry")}
		} else {
			s.items = next
		}
	}
	if res.err == nil && res.after != nil {
		res.after(cmd.ctx)
	}
	res.after = nil
	cmd.reply <- res
}

// submit hands a command to the owner goroutine and waits for the result
func (s *PantryService) submit(ctx context.Context, action string, run func(context.Context, ledger.Collection) (ledger.Collection, commandResult)) commandResult {
	reply := make(chan commandResult, 1)
	cmd := command{action: action, run: run, ctx: context.WithoutCancel(ctx), reply: reply}

	select {
	case s.commands <- cmd:
	case <-s.quit:
		return commandResult{err: errors.Unavailable("pantry is shut down")}
	case <-s.done:
		return commandResult{err: errors.Unavailable("pantry is shut down")}
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	case <-time.After(s.timeout):
		return commandResult{err: errors.Unavailable("pantry queue is busy")}
	}

	// Once accepted the command runs to completion; the caller may stop
	// waiting but the result is still committed.
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return commandResult{err: ctx.Err()}
	}
}

// mutate clones the item, applies fn to the clone and returns a collection
// with the clone swapped in. Items are never changed in place, so the
// shallow map copy shares nothing that is written.
func mutate(items ledger.Collection, id string, fn func(it *ledger.Item) error) (ledger.Collection, *ledger.Item, error) {
	current, ok := items[id]
	if !ok {
		return nil, nil, errors.NotFound("item")
	}

	it := current.Clone()
	if err := fn(it); err != nil {
		return nil, nil, err
	}

	next := make(ledger.Collection, len(items))
	for k, v := range items {
		next[k] = v
	}
	next[id] = it
	return next, it, nil
}

// CreateItem adds an item with one seed batch holding the initial quantity
func (s *PantryService) CreateItem(ctx context.Context, in ledger.NewItem, source string) (*ItemView, error) {
	if err := validateNewItem(&in); err != nil {
		return nil, err
	}
	if source == "" {
		source = SourceManual
	}

	res := s.submit(ctx, "create", func(ctx context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		it := s.ledger.Create(in)
		next := make(ledger.Collection, len(items)+1)
		for k, v := range items {
			next[k] = v
		}
		next[it.ID] = it

		return next, commandResult{
			view: s.view(it),
			after: func(ctx context.Context) {
				s.logger.WithItemID(it.ID).Info().Str("source", source).Msg("pantry item created")
				s.publisher.PublishItemCreated(ctx, it, source)
			},
		}
	})
	return res.view, res.err
}

// GetItem returns one item
func (s *PantryService) GetItem(ctx context.Context, id string) (*ItemView, error) {
	res := s.submit(ctx, "get", func(_ context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		it, ok := items[id]
		if !ok {
			return nil, commandResult{err: errors.NotFound("item")}
		}
		return nil, commandResult{view: s.view(it.Clone())}
	})
	return res.view, res.err
}

// ListFilter narrows ListItems. Category matches exactly (case-insensitive);
// Query matches a substring of the name, notes or barcode.
type ListFilter struct {
	Category string
	Query    string
}

func (f ListFilter) matches(it *ledger.Item) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, it.Category) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.Notes), q) ||
			strings.Contains(it.Barcode, q)
	}
	return true
}

// ListItems returns the matching items in creation order
func (s *PantryService) ListItems(ctx context.Context, filter ListFilter) ([]*ItemView, error) {
	res := s.submit(ctx, "list", func(_ context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		today := s.today()
		views := make([]*ItemView, 0, len(items))
		for _, it := range items.Items() {
			if filter.matches(it) {
				views = append(views, newItemView(it.Clone(), today, s.warnDays))
			}
		}
		return nil, commandResult{views: views}
	})
	return res.views, res.err
}

// Details holds descriptive fields. A nil pointer leaves the field as is;
// a zero QuantityPerPack or TotalQuantity clears it.
type Details struct {
	Name            *string
	Category        *string
	Unit            *string
	QuantityPerPack *decimal.Decimal
	TotalQuantity   *decimal.Decimal
	Notes           *string
	Barcode         *string
}

// UpdateDetails edits descriptive fields. Stock is never touched here.
func (s *PantryService) UpdateDetails(ctx context.Context, id string, d Details) (*ItemView, error) {
	if err := validateDetails(d); err != nil {
		return nil, err
	}

	res := s.submit(ctx, "update", func(ctx context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		var changed []string
		next, it, err := mutate(items, id, func(it *ledger.Item) error {
			changed = applyDetails(it, d)
			if len(changed) > 0 {
				it.UpdatedAt = s.ledger.Now()
			}
			return nil
		})
		if err != nil {
			return nil, commandResult{err: err}
		}
		if len(changed) == 0 {
			return nil, commandResult{view: s.view(items[id].Clone())}
		}
		return next, commandResult{
			view: s.view(it),
			after: func(ctx context.Context) {
				s.publisher.PublishItemUpdated(ctx, id, changed)
			},
		}
	})
	return res.view, res.err
}

// DeleteItem removes an item and all of its batches
func (s *PantryService) DeleteItem(ctx context.Context, id string) error {
	performedBy := actor.ID(ctx)
	res := s.submit(ctx, "delete", func(ctx context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		it, ok := items[id]
		if !ok {
			return nil, commandResult{err: errors.NotFound("item")}
		}
		next := make(ledger.Collection, len(items))
		for k, v := range items {
			if k != id {
				next[k] = v
			}
		}
		return next, commandResult{
			after: func(ctx context.Context) {
				s.logger.WithItemID(id).Info().Int("batch_count", it.BatchCount()).Msg("pantry item deleted")
				s.publisher.PublishItemDeleted(ctx, it, performedBy)
			},
		}
	})
	return res.err
}

// RestockRequest adds stock. A nil Quantity restocks one pack.
type RestockRequest struct {
	Quantity   *decimal.Decimal
	ExpiryDate *ledger.Date
}

// Restock appends a batch. A non-positive quantity changes nothing.
func (s *PantryService) Restock(ctx context.Context, id string, req RestockRequest) (*ItemView, error) {
	performedBy := actor.ID(ctx)
	return s.stockChange(ctx, "restock", id, false, func(it *ledger.Item) ledger.Update {
		if req.Quantity == nil {
			return s.ledger.RestockPack(it, req.ExpiryDate)
		}
		return s.ledger.Restock(it, *req.Quantity, req.ExpiryDate)
	}, func(ctx context.Context, it *ledger.Item, u ledger.Update) {
		s.publisher.PublishRestocked(ctx, it, u, performedBy)
	})
}

// ConsumeRequest removes stock. A nil Quantity consumes one pack.
type ConsumeRequest struct {
	Quantity *decimal.Decimal
}

// Consume removes stock first-expiring-first-out
func (s *PantryService) Consume(ctx context.Context, id string, req ConsumeRequest) (*ItemView, error) {
	performedBy := actor.ID(ctx)
	return s.stockChange(ctx, "consume", id, false, func(it *ledger.Item) ledger.Update {
		if req.Quantity == nil {
			return s.ledger.ConsumePack(it)
		}
		return s.ledger.Consume(it, *req.Quantity)
	}, func(ctx context.Context, it *ledger.Item, u ledger.Update) {
		s.publisher.PublishConsumed(ctx, it, u, performedBy)
	})
}

// ConsumeBatch takes one pack out of the named batch
func (s *PantryService) ConsumeBatch(ctx context.Context, id, batchID string) (*ItemView, error) {
	performedBy := actor.ID(ctx)
	return s.stockChange(ctx, "consume_batch", id, false, func(it *ledger.Item) ledger.Update {
		return s.ledger.ConsumeBatch(it, batchID)
	}, func(ctx context.Context, it *ledger.Item, u ledger.Update) {
		s.publisher.PublishConsumed(ctx, it, u, performedBy)
	})
}

// BatchInput is one row of a manual batch edit. An empty ID asks for a new
// batch; a nil AddedDate means now.
type BatchInput struct {
	ID         string
	Quantity   decimal.Decimal
	ExpiryDate *ledger.Date
	AddedDate  *time.Time
}

// ReplaceBatches installs an edited batch list. Rows with a non-positive
// quantity are dropped.
func (s *PantryService) ReplaceBatches(ctx context.Context, id string, inputs []BatchInput) (*ItemView, error) {
	batches := make([]ledger.Batch, 0, len(inputs))
	for _, in := range inputs {
		b := ledger.Batch{
			ID:         in.ID,
			Quantity:   in.Quantity,
			ExpiryDate: in.ExpiryDate,
		}
		if in.AddedDate != nil {
			b.AddedDate = *in.AddedDate
		}
		batches = append(batches, b)
	}

	performedBy := actor.ID(ctx)
	return s.stockChange(ctx, "replace_batches", id, true, func(it *ledger.Item) ledger.Update {
		return s.ledger.ReplaceBatches(it, batches)
	}, func(ctx context.Context, it *ledger.Item, u ledger.Update) {
		s.publisher.PublishBatchesReplaced(ctx, it, u, performedBy)
	})
}

// stockChange runs a ledger operation against a clone of the item. No-op
// operations skip the save and the event unless always is set.
func (s *PantryService) stockChange(
	ctx context.Context,
	action, id string,
	always bool,
	op func(it *ledger.Item) ledger.Update,
	publish func(ctx context.Context, it *ledger.Item, u ledger.Update),
) (*ItemView, error) {
	res := s.submit(ctx, action, func(ctx context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		var u ledger.Update
		next, it, err := mutate(items, id, func(it *ledger.Item) error {
			u = op(it)
			return nil
		})
		if err != nil {
			return nil, commandResult{err: err}
		}
		if !u.Changed() && !always {
			return nil, commandResult{view: s.view(items[id].Clone())}
		}

		return next, commandResult{
			view: s.view(it),
			after: func(ctx context.Context) {
				s.logger.WithItemID(id).Debug().
					Str("action", action).
					Str("delta", u.Delta.String()).
					Str("current_quantity", u.CurrentQuantity.String()).
					Int("batch_count", len(u.Batches)).
					Msg("stock changed")
				publish(ctx, it, u)
			},
		}
	})
	return res.view, res.err
}

// ExpiringItems returns items whose nearest expiry is within withinDays of
// today, expired ones included, soonest first. A negative withinDays uses
// the configured warning window.
func (s *PantryService) ExpiringItems(ctx context.Context, withinDays int) ([]*ItemView, error) {
	if withinDays < 0 {
		withinDays = s.warnDays
	}

	res := s.submit(ctx, "expiring", func(_ context.Context, items ledger.Collection) (ledger.Collection, commandResult) {
		today := s.today()
		limit := today.AddDays(withinDays)

		var views []*ItemView
		for _, it := range items.Items() {
			expiry := it.ExpiryDate()
			if expiry == nil || !it.CurrentQuantity().IsPositive() || expiry.After(limit) {
				continue
			}
			views = append(views, newItemView(it.Clone(), today, s.warnDays))
		}
		slices.SortStableFunc(views, func(a, b *ItemView) int {
			return a.Item.ExpiryDate().Compare(*b.Item.ExpiryDate())
		})
		if views == nil {
			views = []*ItemView{}
		}
		return nil, commandResult{views: views}
	})
	return res.views, res.err
}

// WarnDays is the configured expiry warning window
func (s *PantryService) WarnDays() int {
	return s.warnDays
}

// StoreName names the backing store for health reporting
func (s *PantryService) StoreName() string {
	return s.store.Name()
}

func (s *PantryService) today() ledger.Date {
	return ledger.DateOf(s.ledger.Now())
}

func (s *PantryService) view(it *ledger.Item) *ItemView {
	return newItemView(it, s.today(), s.warnDays)
}

func validateNewItem(in *ledger.NewItem) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Category = strings.TrimSpace(in.Category)

	details := make(map[string]string)
	if in.Name == "" {
		details["name"] = "this field is required"
	}
	if in.Unit == "" {
		details["unit"] = "this field is required"
	}
	if in.Quantity.IsNegative() {
		details["quantity"] = "must be at least 0"
	}
	if in.QuantityPerPack != nil && !in.QuantityPerPack.IsPositive() {
		details["quantityPerPack"] = "must be greater than 0"
	}
	if in.TotalQuantity != nil && !in.TotalQuantity.IsPositive() {
		details["totalQuantity"] = "must be greater than 0"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

func validateDetails(d Details) error {
	details := make(map[string]string)
	if d.Name != nil && strings.TrimSpace(*d.Name) == "" {
		details["name"] = "must not be empty"
	}
	if d.Unit != nil && strings.TrimSpace(*d.Unit) == "" {
		details["unit"] = "must not be empty"
	}
	if d.QuantityPerPack != nil && d.QuantityPerPack.IsNegative() {
		details["quantityPerPack"] = "must be at least 0"
	}
	if d.TotalQuantity != nil && d.TotalQuantity.IsNegative() {
		details["totalQuantity"] = "must be at least 0"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// applyDetails copies the provided fields onto it and names the ones that changed
func applyDetails(it *ledger.Item, d Details) []string {
	var changed []string
	setString := func(field string, dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = append(changed, field)
		}
	}
	setDecimal := func(field string, dst **decimal.Decimal, src *decimal.Decimal) {
		if src == nil {
			return
		}
		if src.IsZero() {
			if *dst != nil {
				*dst = nil
				changed = append(changed, field)
			}
			return
		}
		if *dst == nil || !(*dst).Equal(*src) {
			v := *src
			*dst = &v
			changed = append(changed, field)
		}
	}

	setString("name", &it.Name, d.Name)
	setString("category", &it.Category, d.Category)
	setString("unit", &it.Unit, d.Unit)
	setDecimal("quantityPerPack", &it.QuantityPerPack, d.QuantityPerPack)
	setDecimal("totalQuantity", &it.TotalQuantity, d.TotalQuantity)
	setString("notes", &it.Notes, d.Notes)
	setString("barcode", &it.Barcode, d.Barcode)
	return changed
}
