// Package engine drives one requester's journey from greeting to resource
// disclosure. State transitions run under the session directory's
// per-identity scope; durable effects go through the store; all external
// calls go through narrow adapter interfaces.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/madakixo/jayy-bot/internal/directory"
	"github.com/madakixo/jayy-bot/internal/protect"
	"github.com/madakixo/jayy-bot/internal/store"
	"github.com/madakixo/jayy-bot/internal/types"
)

// Options carries the engine's configuration, fixed at startup.
type Options struct {
	AdminID         types.RequesterID
	AmountKobo      int64
	QuotaMax        int
	CooldownMinutes int
	MaxConcurrent   int64
}

// Engine is the per-requester workflow state machine.
type Engine struct {
	store     store.Store
	dir       *directory.Directory
	gateway   types.PaymentGateway
	catalog   types.ResourceCatalog
	geocoder  types.Geocoder
	transport types.Transport
	opts      Options

	sem *semaphore.Weighted

	// protectFn is swapped in tests to avoid real image decoding.
	protectFn func([]byte) ([]byte, error)
}

// New creates an Engine. MaxConcurrent caps simultaneous event handlers
// across all requesters; ordering per requester comes from the directory.
func New(st store.Store, dir *directory.Directory, gateway types.PaymentGateway, catalog types.ResourceCatalog, geocoder types.Geocoder, transport types.Transport, opts Options) *Engine {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Engine{
		store:     st,
		dir:       dir,
		gateway:   gateway,
		catalog:   catalog,
		geocoder:  geocoder,
		transport: transport,
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		protectFn: protect.Apply,
	}
}

// HandleEvent processes one validated inbound event. Events for different
// requesters run in parallel up to the concurrency cap; events for one
// requester are serialized by the directory scope.
func (e *Engine) HandleEvent(ctx context.Context, ev types.InboundEvent) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire handler slot: %w", err)
	}
	defer e.sem.Release(1)

	if ev.Kind == types.KindCommand {
		return e.handleCommand(ctx, ev)
	}

	// Disclosure requests are durable-quota gated, not session gated: the
	// access button must keep working after the Done session is swept.
	if ev.Kind == types.KindButtonPress && strings.HasPrefix(ev.Button, "access_") {
		return e.handleAccess(ctx, ev.Requester, types.ResourceID(strings.TrimPrefix(ev.Button, "access_")))
	}

	e.dir.With(ev.Requester, func(s *types.Session) *types.Session {
		if s == nil {
			// No live session and not an entry command; ask to start over.
			e.send(ctx, ev.Requester, msgCancelled)
			return nil
		}
		switch s.State {
		case types.StateStart:
			return e.onConsent(ctx, s, ev)
		case types.StateAwaitingLocation:
			return e.onLocation(ctx, s, ev)
		case types.StateAwaitingResourceChoice:
			return e.onSelection(ctx, s, ev)
		case types.StateAwaitingPayment:
			e.send(ctx, ev.Requester, msgAwaitingPayment)
			return s
		case types.StateAwaitingContact:
			return e.onContact(ctx, s, ev)
		default:
			return s
		}
	})
	return nil
}

func (e *Engine) handleCommand(ctx context.Context, ev types.InboundEvent) error {
	switch ev.Command {
	case "start":
		return e.handleStart(ctx, ev.Requester)
	case "cancel":
		// Discard the session; whatever ledger entry exists stays as-is.
		e.dir.With(ev.Requester, func(*types.Session) *types.Session { return nil })
		e.send(ctx, ev.Requester, msgCancelled)
		return nil
	case "user_count":
		return e.handleUserCount(ctx, ev.Requester)
	default:
		e.send(ctx, ev.Requester, msgUnknownCommand)
		return nil
	}
}

// handleStart opens a fresh session, honoring a pending unlock first: a
// payment that settled while no session was live replays straight into the
// contact step instead of restarting the whole flow.
func (e *Engine) handleStart(ctx context.Context, requester types.RequesterID) error {
	var err error
	e.dir.With(requester, func(*types.Session) *types.Session {
		unlock, takeErr := e.store.TakePendingUnlock(ctx, requester)
		if takeErr == nil {
			e.send(ctx, requester, msgWelcomeBackPaid)
			return &types.Session{
				State:              types.StateAwaitingContact,
				SelectedResourceID: unlock.Resource,
			}
		}
		if !errors.Is(takeErr, types.ErrNotFound) {
			err = fmt.Errorf("consult pending unlocks: %w", takeErr)
		}

		if sendErr := e.transport.SendButtons(ctx, requester, msgWelcome, []types.Button{
			{Label: "Yes, find a connection", Data: "connect_yes"},
			{Label: "No, thanks", Data: "connect_no"},
		}); sendErr != nil {
			slog.Error("send welcome failed", "requester", requester, "error", sendErr)
		}
		return &types.Session{State: types.StateStart}
	})
	return err
}

func (e *Engine) handleUserCount(ctx context.Context, requester types.RequesterID) error {
	if requester != e.opts.AdminID {
		e.send(ctx, requester, msgNotAuthorized)
		return nil
	}
	count, err := e.store.CountEntitlements(ctx)
	if err != nil {
		e.send(ctx, requester, msgRetryLater)
		return fmt.Errorf("count entitlements: %w", err)
	}
	e.send(ctx, requester, fmt.Sprintf(msgUserCount, count))
	return nil
}

func (e *Engine) onConsent(ctx context.Context, s *types.Session, ev types.InboundEvent) *types.Session {
	if ev.Kind != types.KindButtonPress {
		return s
	}
	switch ev.Button {
	case "connect_yes":
		s.State = types.StateAwaitingLocation
		e.send(ctx, s.Requester, msgAskLocation)
		return s
	case "connect_no":
		e.send(ctx, s.Requester, msgDeclined)
		return nil
	default:
		return s
	}
}

func (e *Engine) onLocation(ctx context.Context, s *types.Session, ev types.InboundEvent) *types.Session {
	if ev.Kind != types.KindLocation {
		e.send(ctx, s.Requester, msgBadLocation)
		return s
	}

	region, err := e.geocoder.ResolveRegion(ctx, ev.Latitude, ev.Longitude)
	if err != nil {
		slog.Warn("geocode failed", "requester", s.Requester, "error", err)
		e.send(ctx, s.Requester, msgRetryLater)
		return s
	}
	if region == "" {
		e.send(ctx, s.Requester, msgNoRegion)
		return s
	}

	e.send(ctx, s.Requester, fmt.Sprintf(msgRegionConfirmed, region))

	resources, err := e.catalog.ListResources(ctx, region)
	if err != nil {
		slog.Warn("catalog list failed", "requester", s.Requester, "region", region, "error", err)
		e.send(ctx, s.Requester, msgRetryLater)
		return s
	}
	if len(resources) == 0 {
		e.send(ctx, s.Requester, fmt.Sprintf(msgNoResources, region))
		return s
	}

	s.Region = region
	s.OfferedResources = make(map[types.ResourceID]string, len(resources))
	s.OfferedOrder = s.OfferedOrder[:0]
	media := make([]types.MediaItem, 0, len(resources))
	for _, r := range resources {
		s.OfferedResources[r.ID] = r.Name
		s.OfferedOrder = append(s.OfferedOrder, r.ID)
		media = append(media, types.MediaItem{URL: r.ThumbnailURL, Caption: r.Name})
	}
	if err := e.transport.SendMediaGroup(ctx, s.Requester, media); err != nil {
		slog.Error("send media group failed", "requester", s.Requester, "error", err)
	}
	if err := e.transport.SendButtons(ctx, s.Requester, msgChooseResource, offerButtons(s)); err != nil {
		slog.Error("send choices failed", "requester", s.Requester, "error", err)
	}
	s.State = types.StateAwaitingResourceChoice
	return s
}

// offerButtons rebuilds the selection buttons in the order the resources were
// offered.
func offerButtons(s *types.Session) []types.Button {
	buttons := make([]types.Button, 0, len(s.OfferedOrder))
	for _, id := range s.OfferedOrder {
		buttons = append(buttons, types.Button{
			Label: "Select " + s.OfferedResources[id],
			Data:  "image_" + string(id),
		})
	}
	return buttons
}

// onSelection issues the checkout. A stale or unknown selection is a silent
// re-prompt, since catalog listings can change between offer and press. If
// the ledger write fails after the checkout was issued, the operation is
// rolled back as if it never happened: the checkout is abandoned best-effort
// and the session stays in the choice state.
func (e *Engine) onSelection(ctx context.Context, s *types.Session, ev types.InboundEvent) *types.Session {
	if ev.Kind != types.KindButtonPress || !strings.HasPrefix(ev.Button, "image_") {
		return s
	}
	id := types.ResourceID(strings.TrimPrefix(ev.Button, "image_"))
	name, offered := s.OfferedResources[id]
	if !offered {
		// Stale press; re-send the current offer rather than erroring.
		if err := e.transport.SendButtons(ctx, s.Requester, msgChooseResource, offerButtons(s)); err != nil {
			slog.Error("send choices failed", "requester", s.Requester, "error", err)
		}
		return s
	}

	e.send(ctx, s.Requester, fmt.Sprintf(msgSelected, name, e.opts.AmountKobo/100))

	ref, authURL, err := e.gateway.InitializeCheckout(ctx, s.Requester, id, e.opts.AmountKobo)
	if err != nil {
		slog.Warn("initialize checkout failed", "requester", s.Requester, "error", err)
		e.send(ctx, s.Requester, msgPaymentDown)
		return s
	}

	entry := &types.LedgerEntry{
		Reference: ref,
		Requester: s.Requester,
		Resource:  id,
		Amount:    e.opts.AmountKobo,
		Status:    types.StatusInitialized,
		CreatedAt: time.Now(),
	}
	if err := e.store.CreateLedgerEntry(ctx, entry); err != nil {
		slog.Error("ledger write failed, abandoning checkout", "reference", ref, "error", err)
		if cErr := e.gateway.CancelCheckout(ctx, ref); cErr != nil {
			slog.Warn("cancel checkout failed", "reference", ref, "error", cErr)
		}
		e.send(ctx, s.Requester, msgPaymentDown)
		return s
	}

	s.SelectedResourceID = id
	s.PendingReference = ref
	s.State = types.StateAwaitingPayment
	if err := e.transport.SendButtons(ctx, s.Requester, msgPayPrompt, []types.Button{
		{Label: fmt.Sprintf("Pay NGN %d Now", e.opts.AmountKobo/100), Data: authURL, IsURL: true},
	}); err != nil {
		slog.Error("send pay prompt failed", "requester", s.Requester, "error", err)
	}
	return s
}

func (e *Engine) onContact(ctx context.Context, s *types.Session, ev types.InboundEvent) *types.Session {
	if ev.Kind != types.KindText || strings.TrimSpace(ev.Text) == "" {
		e.send(ctx, s.Requester, msgAskContact)
		return s
	}

	if err := e.store.UpsertContact(ctx, s.Requester, ev.Text, s.Region); err != nil {
		slog.Error("upsert contact failed", "requester", s.Requester, "error", err)
		e.send(ctx, s.Requester, msgRetryLater)
		return s
	}

	s.State = types.StateDone
	if err := e.transport.SendButtons(ctx, s.Requester, msgContactSaved, []types.Button{
		{Label: "Take one-time copy", Data: "access_" + string(s.SelectedResourceID)},
	}); err != nil {
		slog.Error("send done prompt failed", "requester", s.Requester, "error", err)
	}
	return s
}

// handleAccess performs the quota-gated disclosure. The image is fetched and
// protected before the grant so that quota is never consumed for a copy that
// could not be produced; the grant itself is the store's atomic
// check-and-increment.
func (e *Engine) handleAccess(ctx context.Context, requester types.RequesterID, id types.ResourceID) error {
	raw, err := e.catalog.FetchResource(ctx, id)
	if err != nil {
		slog.Warn("fetch resource failed", "requester", requester, "resource", id, "error", err)
		e.send(ctx, requester, msgRetryLater)
		return nil
	}
	protected, err := e.protectFn(raw)
	if err != nil {
		slog.Error("protect resource failed", "resource", id, "error", err)
		e.send(ctx, requester, msgRetryLater)
		return nil
	}

	if err := e.store.GrantResourceAccess(ctx, requester); err != nil {
		switch {
		case errors.Is(err, types.ErrQuotaExceeded):
			e.send(ctx, requester, fmt.Sprintf(msgQuotaExceeded, e.opts.QuotaMax))
		case errors.Is(err, types.ErrCooldownActive):
			e.send(ctx, requester, fmt.Sprintf(msgCooldownActive, e.opts.CooldownMinutes))
		case errors.Is(err, types.ErrNotFound):
			e.send(ctx, requester, msgNeedEntitlement)
		default:
			e.send(ctx, requester, msgRetryLater)
			return fmt.Errorf("grant resource access: %w", err)
		}
		return nil
	}

	if err := e.transport.SendProtectedPhoto(ctx, requester, protected, msgDisclosureNotice); err != nil {
		slog.Error("send protected photo failed", "requester", requester, "error", err)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, to types.RequesterID, text string) {
	if err := e.transport.SendText(ctx, to, text); err != nil {
		slog.Error("send message failed", "requester", to, "error", err)
	}
}
