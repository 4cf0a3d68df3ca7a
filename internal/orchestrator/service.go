package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dai-orchestrator/internal/dai"
	"dai-orchestrator/internal/platform/metrics"

	"github.com/google/uuid"
)

// ErrSessionNotReady is returned for operations that need an initialized stream.
var ErrSessionNotReady = errors.New("session has no initialized stream")

// releaser is implemented by decisioning backends that hold per-stream state.
type releaser interface {
	Release(streamID string) bool
}

// Service runs playback sessions. Each session owns a stream manager on its own loop;
// every call into a manager is made on that loop.
type Service struct {
	repo       Repository
	decisioner dai.Decisioner
	settings   dai.Settings
	log        *slog.Logger
	metrics    *metrics.Metrics

	newID func() string
	now   func() time.Time
}

// NewService returns a Service that requests streams from decisioner and configures
// every session manager with settings. Metrics may be nil.
func NewService(repo Repository, decisioner dai.Decisioner, settings dai.Settings, log *slog.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		repo:       repo,
		decisioner: decisioner,
		settings:   settings,
		log:        log,
		metrics:    m,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// CreateSession starts a session and submits req for it. The stream request completes
// asynchronously; its outcome shows up in the session status and event log.
func (s *Service) CreateSession(ctx context.Context, req dai.StreamRequest) (SessionView, error) {
	if err := ctx.Err(); err != nil {
		return SessionView{}, err
	}
	// A queued request may still run, so cancellation stops applying from here on.
	ctx = context.WithoutCancel(ctx)
	id := SessionID(s.newID())
	log := s.log.With(slog.String("session_id", string(id)))

	loop := dai.NewLoop(0)
	events := NewEventLog(s.metrics)
	player := NewRemotePlayer(events)
	mgr := dai.NewManager(player, s.decisioner,
		dai.WithLoop(loop),
		dai.WithSettings(s.settings),
		dai.WithLogger(log),
	)
	sess := &Session{
		ID:        id,
		CreatedAt: s.now(),
		loop:      loop,
		manager:   mgr,
		player:    player,
		events:    events,
	}

	var reqErr error
	err := loop.Do(ctx, func() {
		mgr.SetDelegate(events)
		reqErr = mgr.RequestStream(req)
	})
	if err == nil {
		err = reqErr
	}
	if err != nil {
		loop.Close()
		events.Close()
		if s.metrics != nil && reqErr != nil {
			s.metrics.IncStreamRequests(metrics.OutcomeRejected)
		}
		return SessionView{}, err
	}

	if err := s.repo.Create(sess); err != nil {
		s.shutdown(context.Background(), sess)
		return SessionView{}, err
	}
	if s.metrics != nil {
		s.metrics.IncSessionsCreated()
	}
	log.Info("session created", slog.String("type", req.Type().String()))
	return s.view(ctx, sess)
}

// GetSession returns the current view of the session.
func (s *Service) GetSession(ctx context.Context, id SessionID) (SessionView, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return SessionView{}, ErrSessionNotFound
	}
	return s.view(ctx, sess)
}

// ListSessions returns views of all sessions, oldest first.
func (s *Service) ListSessions(ctx context.Context) ([]SessionView, error) {
	sessions := s.repo.List()
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		v, err := s.view(ctx, sess)
		if errors.Is(err, ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CloseSession resets the session's manager and releases its resources.
func (s *Service) CloseSession(ctx context.Context, id SessionID) error {
	sess, ok := s.repo.Delete(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.shutdown(ctx, sess)
	if s.metrics != nil {
		s.metrics.IncSessionsClosed()
	}
	s.log.Info("session closed", slog.String("session_id", string(id)))
	return nil
}

// Close closes every session.
func (s *Service) Close(ctx context.Context) {
	for _, sess := range s.repo.List() {
		_ = s.CloseSession(ctx, sess.ID)
	}
}

func (s *Service) shutdown(ctx context.Context, sess *Session) {
	var streamID string
	if err := sess.loop.Do(ctx, func() {
		streamID = sess.manager.StreamID()
		sess.manager.SetDelegate(nil)
		sess.manager.Reset()
	}); err != nil {
		s.log.Warn("session reset failed",
			slog.String("session_id", string(sess.ID)),
			slog.String("error", err.Error()))
	}
	sess.loop.Close()
	sess.events.Close()

	if r, ok := s.decisioner.(releaser); ok && streamID != "" {
		r.Release(streamID)
	}
}

// Progress reports the player's current stream time.
func (s *Service) Progress(ctx context.Context, id SessionID, streamTime float64) error {
	return s.onLoop(ctx, id, func(sess *Session) error {
		sess.player.progressed(streamTime)
		return nil
	})
}

// Metadata reports timed metadata found in the stream.
func (s *Service) Metadata(ctx context.Context, id SessionID, md map[string]string) error {
	return s.onLoop(ctx, id, func(sess *Session) error {
		sess.player.timedMetadata(md)
		return nil
	})
}

// PlayerError reports a playback failure.
func (s *Service) PlayerError(ctx context.Context, id SessionID, message string) error {
	if message == "" {
		message = "playback failed"
	}
	return s.onLoop(ctx, id, func(sess *Session) error {
		sess.player.failed(errors.New(message))
		return nil
	})
}

// PlayerReady reports that the player is ready to play the stream.
func (s *Service) PlayerReady(ctx context.Context, id SessionID) error {
	return s.onLoop(ctx, id, func(sess *Session) error {
		sess.player.ready()
		return nil
	})
}

// StreamTime maps a content time to stream time.
func (s *Service) StreamTime(ctx context.Context, id SessionID, contentTime float64) (float64, error) {
	var out float64
	err := s.onLoop(ctx, id, func(sess *Session) error {
		out = sess.manager.StreamTimeForContentTime(contentTime)
		return nil
	})
	return out, err
}

// ContentTime maps a stream time to content time.
func (s *Service) ContentTime(ctx context.Context, id SessionID, streamTime float64) (float64, error) {
	var out float64
	err := s.onLoop(ctx, id, func(sess *Session) error {
		out = sess.manager.ContentTimeForStreamTime(streamTime)
		return nil
	})
	return out, err
}

// Cuepoints returns the session's cuepoint table.
func (s *Service) Cuepoints(ctx context.Context, id SessionID) ([]dai.Cuepoint, error) {
	var out []dai.Cuepoint
	err := s.onLoop(ctx, id, func(sess *Session) error {
		out = sess.manager.Cuepoints()
		return nil
	})
	return out, err
}

// PreviousCuepoint returns the last cuepoint starting at or before streamTime.
func (s *Service) PreviousCuepoint(ctx context.Context, id SessionID, streamTime float64) (dai.Cuepoint, bool, error) {
	var (
		out   dai.Cuepoint
		found bool
	)
	err := s.onLoop(ctx, id, func(sess *Session) error {
		out, found = sess.manager.PreviousCuepointForStreamTime(streamTime)
		return nil
	})
	return out, found, err
}

// PushCuepoints delivers a cuepoint update from the decisioning service to the
// session's current stream.
func (s *Service) PushCuepoints(ctx context.Context, id SessionID, cuepoints []dai.Cuepoint) error {
	var streamID string
	err := s.onLoop(ctx, id, func(sess *Session) error {
		streamID = sess.manager.StreamID()
		if streamID == "" {
			return ErrSessionNotReady
		}
		return nil
	})
	if err != nil {
		return err
	}
	sess, ok := s.repo.Get(id)
	if !ok || !sess.manager.DeliverCuepoints(streamID, cuepoints) {
		return ErrSessionNotFound
	}
	return nil
}

// Events returns the recorded events of the session with Seq greater than since.
func (s *Service) Events(id SessionID, since int64) ([]RecordedEvent, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.events.Since(since), nil
}

// Subscribe streams the session's events as they are recorded.
func (s *Service) Subscribe(id SessionID) (<-chan RecordedEvent, func(), error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	ch, cancel := sess.events.Subscribe()
	return ch, cancel, nil
}

// ActiveSessionCount returns the number of open sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}

// onLoop runs fn on the session's loop and waits for it.
func (s *Service) onLoop(ctx context.Context, id SessionID, fn func(*Session) error) error {
	sess, ok := s.repo.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	var fnErr error
	err := sess.loop.Do(ctx, func() { fnErr = fn(sess) })
	if errors.Is(err, dai.ErrLoopClosed) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return fnErr
}

func (s *Service) view(ctx context.Context, sess *Session) (SessionView, error) {
	v := SessionView{ID: sess.ID, CreatedAt: sess.CreatedAt}
	err := sess.loop.Do(ctx, func() {
		v.StreamID = sess.manager.StreamID()
		v.StreamType = sess.manager.StreamType().String()
		v.BreakState = sess.manager.BreakState().String()
		v.Cuepoints = sess.manager.Cuepoints()
		v.ManifestURL = sess.player.URL()
		v.Subtitles = sess.player.Subtitles()
	})
	if errors.Is(err, dai.ErrLoopClosed) {
		return SessionView{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionView{}, err
	}
	v.Status, v.LastError = sess.events.Status()
	return v, nil
}
