package offermanager

import (
	"context"
	"reflect"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/ranxxerox/marathon/offer"
)

// MockMatcher is a hand-authored gomock-style mock for Matcher, shaped the
// way mockgen would generate it. Reserved for procedure-registration smoke
// tests where the interaction itself (call count, argument matching) is
// under test, matching the teacher's own use of gomock in pool_test.go to
// verify calls against mpb.SchedulerClient; the Manager's own scenario
// tests use hand-written function matchers instead, since they only need a
// return value, not call-shape assertions.
type MockMatcher struct {
	ctrl     *gomock.Controller
	recorder *MockMatcherRecorder
	id       MatcherID
}

// MockMatcherRecorder records expected calls on a MockMatcher.
type MockMatcherRecorder struct {
	mock *MockMatcher
}

// NewMockMatcher returns a MockMatcher identified by id.
func NewMockMatcher(ctrl *gomock.Controller, id MatcherID) *MockMatcher {
	m := &MockMatcher{ctrl: ctrl, id: id}
	m.recorder = &MockMatcherRecorder{mock: m}
	return m
}

// EXPECT returns the recorder used to set call expectations.
func (m *MockMatcher) EXPECT() *MockMatcherRecorder {
	return m.recorder
}

// ID implements Matcher.
func (m *MockMatcher) ID() MatcherID { return m.id }

// ProcessOffer implements Matcher.
func (m *MockMatcher) ProcessOffer(ctx context.Context, deadline time.Time, current offer.Offer) (offer.MatchedTasks, error) {
	ret := m.ctrl.Call(m, "ProcessOffer", ctx, deadline, current)
	result, _ := ret[0].(offer.MatchedTasks)
	err, _ := ret[1].(error)
	return result, err
}

// ProcessOffer records an expectation for a ProcessOffer call.
func (mr *MockMatcherRecorder) ProcessOffer(ctx, deadline, current interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ProcessOffer",
		reflect.TypeOf((*MockMatcher)(nil).ProcessOffer), ctx, deadline, current)
}
