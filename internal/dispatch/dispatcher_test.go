package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/ami"
	"github.com/ringline/alertcall/internal/model"
	"github.com/ringline/alertcall/internal/storage"
)

// fakeSession records lifecycle calls and can fail on demand.
type fakeSession struct {
	connectErr   error
	originateErr error

	connected  bool
	originated *ami.OriginateRequest
	closed     int
}

func (s *fakeSession) Connect(context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Originate(_ context.Context, req ami.OriginateRequest) error {
	if s.originateErr != nil {
		return s.originateErr
	}
	s.originated = &req
	return nil
}

func (s *fakeSession) Close() {
	s.closed++
}

type sessionLog struct {
	mu       sync.Mutex
	sessions []*fakeSession
	next     func() *fakeSession
}

func newSessionLog(next func() *fakeSession) *sessionLog {
	return &sessionLog{next: next}
}

func (l *sessionLog) factory() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.next()
	l.sessions = append(l.sessions, s)
	return s
}

func (l *sessionLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func testCallConfig() CallConfig {
	return CallConfig{
		Channel:   "PJSIP/1000",
		Exten:     "1000",
		Context:   "from-internal",
		Priority:  1,
		CallerID:  "NTFY Bridge <7777>",
		Timeout:   30 * time.Second,
		Threshold: model.PriorityDispatch,
	}
}

func TestDispatcher_PriorityThreshold(t *testing.T) {
	tests := []struct {
		priority int
		dispatch bool
	}{
		{1, false},
		{2, false},
		{3, false},
		{4, true},
		{5, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("priority %d", tt.priority), func(t *testing.T) {
			log := newSessionLog(func() *fakeSession { return &fakeSession{} })
			d := NewDispatcher(testCallConfig(), log.factory, nil, nil, nil, zap.NewNop())

			d.Handle(context.Background(), &model.Event{Priority: tt.priority})

			if tt.dispatch {
				require.Equal(t, 1, log.count())
			} else {
				require.Zero(t, log.count())
			}
		})
	}
}

func TestDispatcher_OriginatesConfiguredCall(t *testing.T) {
	log := newSessionLog(func() *fakeSession { return &fakeSession{} })
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, nil, zap.NewNop())

	d.Handle(context.Background(), &model.Event{Priority: 5, Title: "Disk Full"})

	require.Equal(t, 1, log.count())
	sess := log.sessions[0]
	require.True(t, sess.connected)
	require.NotNil(t, sess.originated)
	require.Equal(t, "1000", sess.originated.Exten)
	require.Equal(t, "PJSIP/1000", sess.originated.Channel)
	require.Equal(t, "from-internal", sess.originated.Context)
	require.Equal(t, 1, sess.closed)
}

func TestDispatcher_OneSessionPerEvent(t *testing.T) {
	log := newSessionLog(func() *fakeSession { return &fakeSession{} })
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, nil, zap.NewNop())

	d.Handle(context.Background(), &model.Event{Priority: 4})
	d.Handle(context.Background(), &model.Event{Priority: 5})

	require.Equal(t, 2, log.count())
	for _, s := range log.sessions {
		require.Equal(t, 1, s.closed)
	}
}

func TestDispatcher_ConnectFailureIsSwallowed(t *testing.T) {
	log := newSessionLog(func() *fakeSession {
		return &fakeSession{connectErr: errors.New("connection refused")}
	})
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, nil, zap.NewNop())

	// Must not panic or propagate anything.
	d.Handle(context.Background(), &model.Event{Priority: 5})

	require.Equal(t, 1, log.count())
	require.Nil(t, log.sessions[0].originated)
	require.Equal(t, 1, log.sessions[0].closed)
}

func TestDispatcher_AuthFailureClosesSession(t *testing.T) {
	log := newSessionLog(func() *fakeSession {
		return &fakeSession{connectErr: fmt.Errorf("login: %w", ami.ErrAuthenticationFailed)}
	})

	var recorded []*storage.CallRecord
	hist := &fakeHistory{record: func(rec *storage.CallRecord) { recorded = append(recorded, rec) }}
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, hist, zap.NewNop())

	d.Handle(context.Background(), &model.Event{Priority: 5})

	require.Equal(t, 1, log.sessions[0].closed)
	require.Nil(t, log.sessions[0].originated)
	require.Len(t, recorded, 1)
	require.Equal(t, storage.OutcomeAuthFailed, recorded[0].Outcome)
}

func TestDispatcher_OriginateFailureStillCloses(t *testing.T) {
	log := newSessionLog(func() *fakeSession {
		return &fakeSession{originateErr: errors.New("write: broken pipe")}
	})

	var recorded []*storage.CallRecord
	hist := &fakeHistory{record: func(rec *storage.CallRecord) { recorded = append(recorded, rec) }}
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, hist, zap.NewNop())

	d.Handle(context.Background(), &model.Event{Priority: 4})

	require.Equal(t, 1, log.sessions[0].closed)
	require.Len(t, recorded, 1)
	require.Equal(t, storage.OutcomeFailed, recorded[0].Outcome)
}

func TestDispatcher_RecordsSuccessfulDispatch(t *testing.T) {
	log := newSessionLog(func() *fakeSession { return &fakeSession{} })

	var recorded []*storage.CallRecord
	hist := &fakeHistory{record: func(rec *storage.CallRecord) { recorded = append(recorded, rec) }}
	d := NewDispatcher(testCallConfig(), log.factory, nil, nil, hist, zap.NewNop())

	d.Handle(context.Background(), &model.Event{Priority: 5, Title: "Disk Full", Message: "92%"})

	require.Len(t, recorded, 1)
	require.Equal(t, storage.OutcomeOriginated, recorded[0].Outcome)
	require.Equal(t, "Disk Full", recorded[0].Title)
	require.Equal(t, "1000", recorded[0].Exten)
}

// fakeHistory implements storage.CallHistory for dispatcher tests.
type fakeHistory struct {
	record func(*storage.CallRecord)
}

func (h *fakeHistory) Record(_ context.Context, rec *storage.CallRecord) error {
	h.record(rec)
	return nil
}

func (h *fakeHistory) List(context.Context, int) ([]*storage.CallRecord, error) {
	return nil, nil
}

func (h *fakeHistory) DeleteBefore(context.Context, time.Time) error { return nil }
func (h *fakeHistory) Close() error                                  { return nil }
