package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/mhornych/presence/internal/bus"
)

// Timetable is the weekly schedule loaded from YAML. Example:
//
//	contexts:
//	  - context: room-101
//	    entries:
//	      - subject: Math-101
//	        weekday: Mon
//	        start: "09:00"
//	        end: "10:30"
type Timetable struct {
	Contexts []TimetableContext `yaml:"contexts"`
}

// TimetableContext groups schedule entries for one room or feed.
type TimetableContext struct {
	Context string           `yaml:"context"`
	Entries []TimetableEntry `yaml:"entries"`
}

// TimetableEntry is one weekly recurring window.
type TimetableEntry struct {
	Subject string `yaml:"subject"`
	Weekday string `yaml:"weekday"` // Mon, Tue, ... (English abbreviations)
	Start   string `yaml:"start"`   // HH:MM local time
	End     string `yaml:"end"`     // HH:MM local time
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// LoadTimetable reads and validates a timetable YAML file.
func LoadTimetable(path string) (*Timetable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading timetable: %w", err)
	}

	var tt Timetable
	if err := yaml.Unmarshal(data, &tt); err != nil {
		return nil, fmt.Errorf("parsing timetable: %w", err)
	}

	for _, tc := range tt.Contexts {
		if tc.Context == "" {
			return nil, fmt.Errorf("timetable context name is required")
		}
		for _, e := range tc.Entries {
			if _, err := e.window(time.Now(), time.Local); err != nil {
				return nil, fmt.Errorf("timetable entry %q in %s: %w", e.Subject, tc.Context, err)
			}
		}
	}
	return &tt, nil
}

// window resolves the entry to a concrete window on the day of ref, or nil
// if the entry does not occur on that weekday.
func (e TimetableEntry) window(ref time.Time, loc *time.Location) (*Session, error) {
	wd, ok := weekdays[strings.ToLower(e.Weekday)]
	if !ok {
		return nil, fmt.Errorf("unknown weekday %q", e.Weekday)
	}

	start, err := time.ParseInLocation("15:04", e.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start %q: %w", e.Start, err)
	}
	end, err := time.ParseInLocation("15:04", e.End, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end %q: %w", e.End, err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end %q is not after start %q", e.End, e.Start)
	}

	if ref.In(loc).Weekday() != wd {
		return nil, nil
	}

	day := ref.In(loc)
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), start.Hour(), start.Minute(), 0, 0, loc)
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), end.Hour(), end.Minute(), 0, 0, loc)

	return &Session{
		Subject:     e.Subject,
		DayKey:      DayKey(windowStart),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}, nil
}

// Scheduler starts and stops sessions from the timetable. Explicit operator
// start/stop always wins: the scheduler backs off on ErrAlreadyActive and
// never restarts a window it already opened.
type Scheduler struct {
	registry  *Registry
	bus       *bus.Bus
	timetable *Timetable
	loc       *time.Location
	interval  time.Duration

	started map[string]bool // context|subject|dayKey windows already opened
}

// NewScheduler creates a scheduler driving the given registry.
func NewScheduler(r *Registry, b *bus.Bus, tt *Timetable) *Scheduler {
	return &Scheduler{
		registry:  r,
		bus:       b,
		timetable: tt,
		loc:       time.Local,
		interval:  30 * time.Second,
		started:   make(map[string]bool),
	}
}

// SetInterval overrides how often Run ticks. Non-positive values are ignored.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// Tick opens windows that have started and closes windows that have ended.
// Exported so tests can drive the scheduler with a fake clock.
func (s *Scheduler) Tick(now time.Time) {
	for _, tc := range s.timetable.Contexts {
		s.tickContext(tc, now)
	}
}

func (s *Scheduler) tickContext(tc TimetableContext, now time.Time) {
	active := s.registry.Current(tc.Context)

	// Close a session whose window has ended.
	if active != nil && now.After(active.WindowEnd) {
		if stopped, err := s.registry.Stop(tc.Context); err == nil {
			log.Printf("scheduler: closed session %s (%s) in %s", stopped.ID, stopped.Subject, tc.Context)
			s.publish("Session ended", fmt.Sprintf("%s ended in %s", stopped.Subject, tc.Context))
		}
		active = nil
	}

	if active != nil {
		return
	}

	for _, e := range tc.Entries {
		window, err := e.window(now, s.loc)
		if err != nil || window == nil {
			continue
		}
		if now.Before(window.WindowStart) || now.After(window.WindowEnd) {
			continue
		}

		key := tc.Context + "|" + window.Subject + "|" + window.DayKey
		if s.started[key] {
			continue // already opened once today; an operator stop stays stopped
		}

		window.ID = uuid.NewString()
		if err := s.registry.Start(tc.Context, *window); err != nil {
			// Operator already started something here; leave it alone.
			continue
		}
		s.started[key] = true
		log.Printf("scheduler: started session %s (%s) in %s", window.ID, window.Subject, tc.Context)
		s.publish("Session started", fmt.Sprintf("%s started in %s", window.Subject, tc.Context))
		return
	}
}

func (s *Scheduler) publish(title, message string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.KindSystemUpdate, bus.SeverityLow, title, message, nil)
}
