package offermanager

import (
	"context"

	"go.uber.org/yarpc"
	"go.uber.org/yarpc/encoding/json"
)

// RegisterProcedures exposes the Manager's token-accounting operations as
// yarpc JSON procedures, matching jobmgr/task/handler.go's
// InitServiceHandler / json.Register(d, json.Procedure(...)) wiring idiom.
// These are the procedures the Admission Filter (package admission) fronts
// on the management HTTP surface.
//
// AddOrUpdateMatcher/RemoveMatcher are deliberately not exposed here: a
// Matcher is an in-process capability (its ProcessOffer callback cannot
// cross a JSON wire), so matcher registration stays a Go-level API call
// made by whatever process wires matchers up, per spec.md §1's framing of
// matcher content as an external collaborator.
func RegisterProcedures(d *yarpc.Dispatcher, m *Manager) {
	json.Register(d, json.Procedure("OfferManager.SetLaunchTokens", m.setLaunchTokensProcedure))
	json.Register(d, json.Procedure("OfferManager.AddLaunchTokens", m.addLaunchTokensProcedure))
}

// SetLaunchTokensRequest is the wire request for SetLaunchTokens.
type SetLaunchTokensRequest struct {
	Tokens int `json:"tokens"`
}

// SetLaunchTokensResponse acknowledges a SetLaunchTokens call.
type SetLaunchTokensResponse struct{}

func (m *Manager) setLaunchTokensProcedure(ctx context.Context, req *SetLaunchTokensRequest) (*SetLaunchTokensResponse, error) {
	m.SetLaunchTokens(req.Tokens)
	return &SetLaunchTokensResponse{}, nil
}

// AddLaunchTokensRequest is the wire request for AddLaunchTokens. Per
// SPEC_FULL.md §9, externally-supplied deltas are expected to be >= 0; the
// Manager clamps the resulting counter at zero rather than rejecting a
// negative delta outright, the same clamp-at-zero rule the internal
// token-consumption flow applies.
type AddLaunchTokensRequest struct {
	Delta int `json:"delta"`
}

// AddLaunchTokensResponse acknowledges an AddLaunchTokens call.
type AddLaunchTokensResponse struct{}

func (m *Manager) addLaunchTokensProcedure(ctx context.Context, req *AddLaunchTokensRequest) (*AddLaunchTokensResponse, error) {
	m.AddLaunchTokens(req.Delta)
	return &AddLaunchTokensResponse{}, nil
}
