// Package statuslog periodically writes a presence snapshot to the log.
package statuslog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RAMYA-PARSANIA/simally-signaling/internal/signaling"
)

// maxLoggedRooms bounds the per-room breakdown in one snapshot line.
const maxLoggedRooms = 20

var ErrIntervalTooShort = errors.New("statuslog: interval must be at least 1s")

// Source is the presence state being reported.
type Source interface {
	Status() signaling.Status
	Rooms() map[string]int
}

type Reporter struct {
	src  Source
	log  *slog.Logger
	cron *cron.Cron
}

func New(src Source, log *slog.Logger, interval time.Duration) (*Reporter, error) {
	if interval < time.Second {
		return nil, ErrIntervalTooShort
	}
	r := &Reporter{src: src, log: log}
	r.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))
	if _, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), r.Report); err != nil {
		return nil, fmt.Errorf("statuslog: schedule: %w", err)
	}
	return r, nil
}

func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	st := r.src.Status()
	attrs := []any{
		"active_rooms", st.ActiveRooms,
		"participants", st.TotalParticipants,
		"connections", st.Connections,
	}

	rooms := r.src.Rooms()
	if len(rooms) > 0 {
		ids := make([]string, 0, len(rooms))
		for id := range rooms {
			ids = append(ids, id)
		}
		// Largest rooms first.
		sort.Slice(ids, func(i, j int) bool {
			if rooms[ids[i]] != rooms[ids[j]] {
				return rooms[ids[i]] > rooms[ids[j]]
			}
			return ids[i] < ids[j]
		})
		if len(ids) > maxLoggedRooms {
			ids = ids[:maxLoggedRooms]
		}
		group := make([]any, 0, len(ids))
		for _, id := range ids {
			group = append(group, slog.Int(id, rooms[id]))
		}
		attrs = append(attrs, slog.Group("rooms", group...))
	}

	r.log.Info("presence_status", attrs...)
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
