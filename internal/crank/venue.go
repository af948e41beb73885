package crank

import (
	"context"
	"encoding/json"
	"fmt"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Venue reports a vault's current equity and fuel counters.
type Venue interface {
	Valuation(ctx context.Context, vault uuid.UUID) (event.Valuation, error)
}

const venueSubjectPrefix = "vault.venue.valuation."

// NATSVenue asks the trading venue for a valuation over NATS request/reply. The venue
// answers on vault.venue.valuation.<vault_id> with {"vault_equity", "fuel_reading"}.
type NATSVenue struct {
	nc *nats.Conn
}

func NewNATSVenue(nc *nats.Conn) *NATSVenue {
	return &NATSVenue{nc: nc}
}

func (v *NATSVenue) Valuation(ctx context.Context, vault uuid.UUID) (event.Valuation, error) {
	msg, err := v.nc.RequestWithContext(ctx, venueSubjectPrefix+vault.String(), nil)
	if err != nil {
		return event.Valuation{}, fmt.Errorf("venue valuation %s: %w", vault, err)
	}
	var val event.Valuation
	if err := json.Unmarshal(msg.Data, &val); err != nil {
		return event.Valuation{}, fmt.Errorf("decode venue valuation %s: %w", vault, err)
	}
	return val, nil
}
