package adminserver

import (
	"context"
	"time"

	"github.com/tm2pc/txmanager/internal/snapshotstore"
	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/events"
	"github.com/tm2pc/txmanager/pkg/logger"
)

// SnapshotLoop periodically persists tm2pc's whole-process snapshot to the
// durable store, and restores it once at startup so a restart picks up
// where the in-memory store left off.
type SnapshotLoop struct {
	tm     *tm2pc.TM
	store  *snapshotstore.GormStore
	logger logger.Logger
}

func NewSnapshotLoop(tm *tm2pc.TM, store *snapshotstore.GormStore, log logger.Logger) *SnapshotLoop {
	return &SnapshotLoop{tm: tm, store: store, logger: log}
}

// Restore loads the last persisted snapshot, if any, before the HTTP
// surface starts serving traffic.
func (l *SnapshotLoop) Restore(ctx context.Context) error {
	data, found, err := l.store.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return l.tm.SetData(ctx, data)
}

// Run saves a snapshot every interval until ctx is cancelled.
func (l *SnapshotLoop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := l.tm.GetData(ctx)
			if err != nil {
				l.warn("snapshot read failed", err)
				continue
			}
			if err := l.store.Save(ctx, data); err != nil {
				l.warn("snapshot save failed", err)
			}
		}
	}
}

func (l *SnapshotLoop) warn(msg string, err error) {
	if l.logger != nil {
		l.logger.Warn("adminserver: "+msg, "error", err)
	}
}

// ArchiveOnTerminal subscribes to the order-lifecycle topics that mark an
// order done or aborted and cold-archives it to S3, mirroring the gc
// sweep's in-memory retirement with a durable copy an operator can still
// query after Clear drops it from the live store.
func ArchiveOnTerminal(bus events.EventBus, tm *tm2pc.TM, archiver *snapshotstore.Archiver, log logger.Logger) error {
	terminal := []string{events.OrderDone, events.OrderAborted}
	for _, t := range terminal {
		eventType := t
		err := bus.Subscribe(eventType, func(ctx context.Context, e events.Event) error {
			toid, _ := e.Payload["toid"].(tm2pc.Toid)
			order, err := tm.GetOrder(ctx, toid)
			if err != nil || order == nil {
				return nil
			}
			taskEvents := collectTaskEvents(tm, toid)
			if err := archiver.Archive(ctx, *order, taskEvents); err != nil {
				if log != nil {
					log.Warn("adminserver: archive failed", "toid", toid, "error", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func collectTaskEvents(tm *tm2pc.TM, toid tm2pc.Toid) []tm2pc.TaskEvent {
	ttids, err := tm.GetTaskEvents(context.Background(), toid)
	if err != nil {
		return nil
	}
	actuator := tm.GetActuator()
	events := make([]tm2pc.TaskEvent, 0, len(ttids))
	for _, ttid := range ttids {
		if e, ok := actuator.GetTaskEvent(ttid); ok {
			events = append(events, e)
		}
	}
	return events
}
