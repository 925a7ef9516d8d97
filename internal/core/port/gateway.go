package port

import (
	"context"

	"github.com/Wyydra/devmeet/internal/core/domain"
)

// Transport delivers events to live connections. Send must not block on
// network I/O; implementations queue and return domain.ErrTransportFailure
// when the connection is gone or its queue is full.
type Transport interface {
	Send(ctx context.Context, to domain.ConnectionID, ev domain.Outbound) error
}
