package admission

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/yarpc/api/middleware"
	"go.uber.org/yarpc/api/transport"
)

// UnaryInboundMiddleware adapts Filter to yarpc's middleware.UnaryInbound,
// gating the control-plane procedures (SetLaunchTokens/AddLaunchTokens)
// the same way Wrap gates HTTP handlers: acquire a permit before calling
// through, release on every exit, reject once the pool and its wait queue
// are both exhausted.
func (f *Filter) UnaryInboundMiddleware() middleware.UnaryInbound {
	return unaryInboundMiddleware{f: f}
}

type unaryInboundMiddleware struct {
	f *Filter
}

func (m unaryInboundMiddleware) Handle(ctx context.Context, req *transport.Request, resw transport.ResponseWriter, h transport.UnaryHandler) error {
	if !m.f.Acquire(m.f.cfg.WaitTime) {
		m.f.rejectRPC(req)
		return errors.Errorf(rejectedBodyFormat, m.f.cfg.ConcurrentRequests)
	}
	defer m.f.Release()
	return h.Handle(ctx, req, resw)
}
