package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/discochess/coach/internal/engine"
	"github.com/discochess/coach/internal/enginetest"
	"github.com/discochess/coach/internal/fen"
)

const (
	startFEN   = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	afterE4FEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
)

func newEngine(t *testing.T, fake *enginetest.Engine) *engine.Supervisor {
	t.Helper()
	s := engine.New(fake,
		engine.WithLogger(zaptest.NewLogger(t)),
		engine.WithHeartbeat(0, time.Second),
		engine.WithSearchGrace(200*time.Millisecond),
		engine.WithKillGrace(10*time.Millisecond),
	)
	t.Cleanup(func() { s.Close() })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return s
}

func newManager(t *testing.T, eng Engine, opts ...Option) *Manager {
	t.Helper()
	m := New(eng, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	t.Cleanup(func() { m.Close() })
	return m
}

func subscribe(t *testing.T, m *Manager, id string) *Subscription {
	t.Helper()
	sub, err := m.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	t.Cleanup(sub.Close)
	return sub
}

func next(t *testing.T, sub *Subscription) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return ev
}

// nextOf skips events until one of type typ arrives.
func nextOf(t *testing.T, sub *Subscription, typ EventType) Event {
	t.Helper()
	for {
		if ev := next(t, sub); ev.Type == typ {
			return ev
		}
	}
}

// stubEngine rejects every job.
type stubEngine struct{ err error }

func (e stubEngine) Submit(context.Context, engine.Job) (*engine.Future, error) {
	return nil, e.err
}

func (e stubEngine) State() engine.State {
	return engine.State{Status: engine.StatusFailed}
}

func TestManager_Create(t *testing.T) {
	m := newManager(t, newEngine(t, enginetest.New()))

	info, err := m.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if info.ID == "" || info.State != StateConnected {
		t.Fatalf("Create() = %+v", info)
	}
	if info.Settings != DefaultSettings() {
		t.Errorf("Settings = %+v, want defaults", info.Settings)
	}

	sub := subscribe(t, m, info.ID)
	ev := next(t, sub)
	if ev.Type != EventConnectionEstablished {
		t.Fatalf("first event = %s, want connection_established", ev.Type)
	}
	data := ev.Data.(ConnectionData)
	if data.SessionID != info.ID || data.Engine.Status != engine.StatusReady {
		t.Errorf("connection data = %+v", data)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestManager_Analyze(t *testing.T) {
	fake := enginetest.New(enginetest.WithEvaluator(func(string) []enginetest.Line {
		return []enginetest.Line{
			{Score: 40, Moves: []string{"e7e5"}, Depth: 14},
			{Score: 20, Moves: []string{"c7c5"}, Depth: 14},
		}
	}))
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	requestID, err := m.Analyze(info.ID, afterE4FEN, Overrides{})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	started := nextOf(t, sub, EventAnalysisStarted).Data.(StartedData)
	if started.RequestID != requestID || started.FEN != afterE4FEN {
		t.Errorf("started = %+v", started)
	}
	complete := nextOf(t, sub, EventAnalysisComplete).Data.(CompleteData)
	if complete.RequestID != requestID {
		t.Errorf("complete request = %s, want %s", complete.RequestID, requestID)
	}
	best := complete.Result.Best()
	if best == nil || best.BestMove != "e7e5" {
		t.Fatalf("best line = %+v", best)
	}
	// Black to move: +40 for Black is -40 for White.
	if best.EvaluationCp != -40 {
		t.Errorf("EvaluationCp = %d, want -40", best.EvaluationCp)
	}
	if len(complete.Result.Lines) != 2 {
		t.Errorf("len(Lines) = %d, want 2", len(complete.Result.Lines))
	}

	got, _ := m.Get(info.ID)
	if got.State != StateIdle {
		t.Errorf("State = %s, want idle", got.State)
	}
}

func TestManager_Supersession(t *testing.T) {
	fake := enginetest.New(enginetest.WithDelay(100 * time.Millisecond))
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	if _, err := m.Analyze(info.ID, startFEN, Overrides{}); err != nil {
		t.Fatal(err)
	}
	latest, err := m.Analyze(info.ID, afterE4FEN, Overrides{})
	if err != nil {
		t.Fatal(err)
	}

	complete := nextOf(t, sub, EventAnalysisComplete).Data.(CompleteData)
	if complete.RequestID != latest || complete.Result.FEN != afterE4FEN {
		t.Errorf("complete = %s for %s, want %s for %s",
			complete.RequestID, complete.Result.FEN, latest, afterE4FEN)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if ev.Type == EventAnalysisComplete || ev.Type == EventAnalysisError {
			t.Fatalf("unexpected %s event after supersession: %+v", ev.Type, ev.Data)
		}
	}
}

func TestManager_AnalyzeOverrides(t *testing.T) {
	fake := enginetest.New()
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	one := 1
	if _, err := m.Analyze(info.ID, startFEN, Overrides{MultiPV: &one}); err != nil {
		t.Fatal(err)
	}
	started := nextOf(t, sub, EventAnalysisStarted).Data.(StartedData)
	if started.Settings.MultiPV != 1 || started.Settings.Depth != DefaultSettings().Depth {
		t.Errorf("started settings = %+v", started.Settings)
	}
	nextOf(t, sub, EventAnalysisComplete)
	if got := fake.Option("MultiPV"); got != "1" {
		t.Errorf("MultiPV option = %q, want 1", got)
	}

	got, _ := m.Get(info.ID)
	if got.Settings.MultiPV != DefaultSettings().MultiPV {
		t.Error("overrides changed the session settings")
	}
}

func TestManager_AnalyzeInvalidPosition(t *testing.T) {
	fake := enginetest.New()
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()

	tests := []string{"", "not a fen", "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR x KQkq - 0 1"}
	for _, position := range tests {
		if _, err := m.Analyze(info.ID, position, Overrides{}); !errors.Is(err, fen.ErrInvalidFEN) {
			t.Errorf("Analyze(%q) error = %v, want ErrInvalidFEN", position, err)
		}
	}
	if n := len(fake.Positions()); n != 0 {
		t.Errorf("engine searched %d positions, want 0", n)
	}
}

func TestManager_AnalyzeEngineError(t *testing.T) {
	m := newManager(t, stubEngine{err: engine.ErrEngineUnavailable})
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	if _, err := m.Analyze(info.ID, startFEN, Overrides{}); !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("Analyze() error = %v, want ErrEngineUnavailable", err)
	}
	data := nextOf(t, sub, EventAnalysisError).Data.(ErrorData)
	if data.FEN != startFEN || data.Message == "" {
		t.Errorf("error data = %+v", data)
	}

	got, err := m.Get(info.ID)
	if err != nil || got.State != StateIdle {
		t.Errorf("session after error = %+v, %v; want idle", got, err)
	}
}

func TestManager_UpdateSettings(t *testing.T) {
	fake := enginetest.New()
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	depth, timeLimit := 12, 750
	settings, err := m.UpdateSettings(info.ID, Overrides{Depth: &depth, TimeLimitMs: &timeLimit})
	if err != nil {
		t.Fatal(err)
	}
	want := Settings{Depth: 12, TimeLimitMs: 750, MultiPV: DefaultSettings().MultiPV}
	if settings != want {
		t.Errorf("UpdateSettings() = %+v, want %+v", settings, want)
	}
	ev := nextOf(t, sub, EventSettingsUpdated)
	if ev.Data.(Settings) != want {
		t.Errorf("settings_updated = %+v", ev.Data)
	}
	if settings.TimeLimit() != 750*time.Millisecond {
		t.Errorf("TimeLimit() = %s", settings.TimeLimit())
	}
	if n := len(fake.Positions()); n != 0 {
		t.Errorf("updating settings searched %d positions", n)
	}
}

func TestManager_CloseSession(t *testing.T) {
	fake := enginetest.New(enginetest.WithDelay(time.Second))
	m := newManager(t, newEngine(t, fake))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	if _, err := m.Analyze(info.ID, startFEN, Overrides{}); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseSession(info.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	closed := nextOf(t, sub, EventSessionClosed).Data.(ClosedData)
	if closed.Reason == "" {
		t.Error("session_closed without a reason")
	}
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Next() after session_closed error = %v, want ErrSessionClosed", err)
	}

	if _, err := m.Analyze(info.ID, startFEN, Overrides{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Analyze() after close error = %v, want ErrSessionClosed", err)
	}
	if err := m.CloseSession(info.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second CloseSession() error = %v, want ErrSessionClosed", err)
	}
	if _, err := m.Subscribe("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Subscribe(unknown) error = %v, want ErrSessionNotFound", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestManager_IdleEviction(t *testing.T) {
	m := newManager(t, stubEngine{},
		WithIdleTimeout(30*time.Millisecond),
		WithHeartbeatInterval(5*time.Millisecond),
	)
	idle, _ := m.Create()
	attached, _ := m.Create()
	subscribe(t, m, attached.ID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := m.Get(idle.ID)
		if errors.Is(err, ErrSessionClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("idle session was not evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := m.Get(attached.ID); err != nil {
		t.Errorf("subscribed session evicted: %v", err)
	}
}

func TestManager_Heartbeat(t *testing.T) {
	m := newManager(t, stubEngine{}, WithHeartbeatInterval(5*time.Millisecond))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	nextOf(t, sub, EventHeartbeat)
}

func TestManager_SubscribeReplaces(t *testing.T) {
	m := newManager(t, stubEngine{})
	info, _ := m.Create()

	first := subscribe(t, m, info.ID)
	second := subscribe(t, m, info.ID)

	if _, err := first.Next(context.Background()); !errors.Is(err, ErrDetached) {
		t.Fatalf("replaced Next() error = %v, want ErrDetached", err)
	}
	if ev := next(t, second); ev.Type != EventConnectionEstablished {
		t.Errorf("second subscription got %s, want connection_established", ev.Type)
	}
	if got, _ := m.Get(info.ID); !got.Subscribed {
		t.Error("Subscribed = false, want true")
	}

	// Closing the replaced subscription must not detach the new one.
	first.Close()
	if got, _ := m.Get(info.ID); !got.Subscribed {
		t.Error("closing the old subscription detached the new one")
	}
	second.Close()
	if got, _ := m.Get(info.ID); got.Subscribed {
		t.Error("Subscribed = true after Close")
	}
}

func TestManager_ResubscribeKeepsEvents(t *testing.T) {
	m := newManager(t, stubEngine{})

	for i := 0; i < 200; i++ {
		info, err := m.Create()
		if err != nil {
			t.Fatal(err)
		}
		old, _ := m.Subscribe(info.ID)
		if ev := next(t, old); ev.Type != EventConnectionEstablished {
			t.Fatalf("first event = %s", ev.Type)
		}

		// The old consumer is already waiting when it gets replaced.
		stale := make(chan Event, 1)
		go func() {
			if ev, err := old.Next(context.Background()); err == nil {
				stale <- ev
			}
			close(stale)
		}()

		fresh, err := m.Subscribe(info.ID)
		if err != nil {
			t.Fatal(err)
		}
		depth := i + 1
		if _, err := m.UpdateSettings(info.ID, Overrides{Depth: &depth}); err != nil {
			t.Fatal(err)
		}

		ev := next(t, fresh)
		if ev.Type != EventSettingsUpdated || ev.Data.(Settings).Depth != depth {
			t.Fatalf("iteration %d: new subscriber got %s %+v", i, ev.Type, ev.Data)
		}
		if ev, ok := <-stale; ok {
			t.Fatalf("iteration %d: replaced subscriber received %s", i, ev.Type)
		}
		fresh.Close()
		m.CloseSession(info.ID)
	}
}

func TestSubscription_Unread(t *testing.T) {
	tests := []struct {
		name     string
		buffer   int
		updates  int
		wantNext []int
	}{
		{"requeued ahead of newer events", 4, 2, []int{1, 2}},
		{"full buffer drops the requeued event", 1, 2, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, stubEngine{}, WithBufferSize(tt.buffer))
			info, _ := m.Create()
			sub := subscribe(t, m, info.ID)
			next(t, sub)

			one := 1
			m.UpdateSettings(info.ID, Overrides{Depth: &one})
			ev := next(t, sub)
			for depth := 2; depth <= tt.updates; depth++ {
				m.UpdateSettings(info.ID, Overrides{Depth: &depth})
			}
			sub.Unread(ev)

			// A reconnecting subscriber sees the undelivered event first.
			fresh := subscribe(t, m, info.ID)
			for _, want := range tt.wantNext {
				ev := next(t, fresh)
				if ev.Type != EventSettingsUpdated || ev.Data.(Settings).Depth != want {
					t.Errorf("event = %s %+v, want settings_updated depth %d", ev.Type, ev.Data, want)
				}
			}
		})
	}
}

func TestManager_BufferDropsOldest(t *testing.T) {
	m := newManager(t, stubEngine{}, WithBufferSize(2))
	info, _ := m.Create()

	for depth := 1; depth <= 5; depth++ {
		if _, err := m.UpdateSettings(info.ID, Overrides{Depth: &depth}); err != nil {
			t.Fatal(err)
		}
	}

	sub := subscribe(t, m, info.ID)
	for _, want := range []int{4, 5} {
		ev := next(t, sub)
		if ev.Type != EventSettingsUpdated || ev.Data.(Settings).Depth != want {
			t.Errorf("event = %s %+v, want settings_updated depth %d", ev.Type, ev.Data, want)
		}
	}
}

func TestManager_BroadcastEngineStatus(t *testing.T) {
	m := newManager(t, stubEngine{})
	a, _ := m.Create()
	b, _ := m.Create()
	subA := subscribe(t, m, a.ID)
	subB := subscribe(t, m, b.ID)

	m.BroadcastEngineStatus(engine.State{Status: engine.StatusRestarting, RestartCount: 2})

	for _, sub := range []*Subscription{subA, subB} {
		st := nextOf(t, sub, EventEngineStatus).Data.(engine.State)
		if st.Status != engine.StatusRestarting || st.RestartCount != 2 {
			t.Errorf("engine_status = %+v", st)
		}
	}
}

func TestManager_Close(t *testing.T) {
	m := New(stubEngine{}, WithLogger(zaptest.NewLogger(t)))
	info, _ := m.Create()
	sub := subscribe(t, m, info.ID)

	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	closed := nextOf(t, sub, EventSessionClosed).Data.(ClosedData)
	if closed.Reason != "server shutting down" {
		t.Errorf("session_closed reason = %q", closed.Reason)
	}
	if _, err := m.Create(); !errors.Is(err, ErrClosed) {
		t.Errorf("Create() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestOverrides_Apply(t *testing.T) {
	zero, neg, five := 0, -3, 5
	base := Settings{Depth: 20, TimeLimitMs: 5000, MultiPV: 3}

	tests := []struct {
		name string
		o    Overrides
		want Settings
	}{
		{"empty", Overrides{}, base},
		{"depth", Overrides{Depth: &five}, Settings{Depth: 5, TimeLimitMs: 5000, MultiPV: 3}},
		{"non-positive ignored", Overrides{Depth: &zero, MultiPV: &neg}, base},
		{"all", Overrides{Depth: &five, TimeLimitMs: &five, MultiPV: &five}, Settings{5, 5, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.Apply(base); got != tt.want {
				t.Errorf("Apply() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
