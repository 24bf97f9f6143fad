package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
)

// Document is one file moving across a bank channel in either direction.
type Document struct {
	Filename string
	Payload  []byte
}

// Channel is the abstract transport for one configured bank connection. The
// wire-level details (national payment schema, TLS negotiation) stay outside
// this service; only "deliver file" and "list pending inbound" are needed.
type Channel interface {
	Deliver(ctx context.Context, filename string, payload []byte) error
	ListPending(ctx context.Context, max int) ([]Document, error)
}

// Factory builds channels for one kind from a profile's validated config bag.
type Factory interface {
	Kind() bankprofiledomain.ChannelKind
	NewChannel(cfg Config) (Channel, error)
}

type Config struct {
	CompanyID snowflake.ID
	BankCode  string
	Config    map[string]any
	Timeout   time.Duration
}

var (
	ErrKindNotFound  = errors.New("channel_kind_not_found")
	ErrInvalidConfig = errors.New("invalid_channel_config")

	// ErrChannelIO wraps transport failures. Safe to retry with backoff; no
	// local state is mutated before the transport call succeeds.
	ErrChannelIO = errors.New("channel_io")
)
