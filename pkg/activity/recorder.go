package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Messages
type appendEntry struct {
	Entry models.Activity
}

type flushRequest struct{}

type flushed struct {
	Written int
}

// writerActor is the only writer of the activity log.
type writerActor struct {
	log     repository.ActivityLog
	logger  *zap.Logger
	written int
}

func (a *writerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *appendEntry:
		wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := a.log.AppendActivity(wctx, msg.Entry)
		cancel()
		if err != nil {
			a.logger.Error("Failed to write activity",
				zap.String("action", msg.Entry.Action),
				zap.Error(err))
			return
		}
		a.written++

	case *flushRequest:
		ctx.Respond(&flushed{Written: a.written})

	case *actor.Started:
		a.logger.Debug("Activity writer started")

	case *actor.Stopped:
		a.logger.Debug("Activity writer stopped", zap.Int("written", a.written))
	}
}

// Recorder queues activity entries for the writer actor. Record never blocks
// the caller on storage.
type Recorder struct {
	root   *actor.RootContext
	pid    *actor.PID
	now    func() time.Time
	logger *zap.Logger
}

func NewRecorder(system *actor.ActorSystem, log repository.ActivityLog, logger *zap.Logger) (*Recorder, error) {
	logger = logger.Named("activity")
	props := actor.PropsFromProducer(func() actor.Actor {
		return &writerActor{log: log, logger: logger}
	})
	pid, err := system.Root.SpawnNamed(props, "activity-writer")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn activity writer: %w", err)
	}

	return &Recorder{
		root:   system.Root,
		pid:    pid,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (r *Recorder) Record(entry models.Activity) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now()
	}
	r.root.Send(r.pid, &appendEntry{Entry: entry})
}

// Flush waits until every entry recorded before the call has been handled.
// It returns the number of entries written so far.
func (r *Recorder) Flush(timeout time.Duration) (int, error) {
	res, err := r.root.RequestFuture(r.pid, &flushRequest{}, timeout).Result()
	if err != nil {
		return 0, fmt.Errorf("flush activity log: %w", err)
	}
	f, ok := res.(*flushed)
	if !ok {
		return 0, fmt.Errorf("flush activity log: unexpected reply %T", res)
	}
	return f.Written, nil
}

// Stop drains queued entries and stops the writer.
func (r *Recorder) Stop() error {
	return r.root.PoisonFuture(r.pid).Wait()
}
