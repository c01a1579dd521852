// internal/types/interfaces.go
package types

import (
	"context"
)

// PaymentGateway issues checkout references and verifies their settlement
// status against the external provider.
type PaymentGateway interface {
	InitializeCheckout(ctx context.Context, requester RequesterID, resource ResourceID, amount int64) (Reference, string, error)
	Verify(ctx context.Context, ref Reference) (SettlementStatus, error)
	// CancelCheckout is a best-effort compensating cancellation used when a
	// checkout was issued but its ledger entry could not be written.
	CancelCheckout(ctx context.Context, ref Reference) error
}

// ResourceCatalog lists available resources for a region and fetches a
// resource's bytes.
type ResourceCatalog interface {
	ListResources(ctx context.Context, region string) ([]Resource, error)
	FetchResource(ctx context.Context, id ResourceID) ([]byte, error)
}

// Geocoder resolves coordinates to a supported region name. An unsupported
// location yields an empty region and a nil error.
type Geocoder interface {
	ResolveRegion(ctx context.Context, lat, lon float64) (string, error)
}

// Transport sends outbound messages to a requester's conversation.
type Transport interface {
	SendText(ctx context.Context, to RequesterID, text string) error
	SendButtons(ctx context.Context, to RequesterID, text string, buttons []Button) error
	SendMediaGroup(ctx context.Context, to RequesterID, items []MediaItem) error
	// SendProtectedPhoto sends raw image bytes with forwarding/saving
	// disabled where the platform supports it.
	SendProtectedPhoto(ctx context.Context, to RequesterID, photo []byte, caption string) error
}
