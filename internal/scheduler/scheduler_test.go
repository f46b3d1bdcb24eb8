package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRunner struct {
	dates []civil.Date
	err   error
}

func (f *fakeRunner) Run(_ context.Context, date civil.Date) (regulation.Report, error) {
	f.dates = append(f.dates, date)
	return regulation.Report{CalculationMonth: date}, f.err
}

func TestRunOnceUsesCurrentDate(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, "0 6 1 * *", nil)
	s.now = func() time.Time { return time.Date(2023, 2, 1, 6, 0, 0, 0, time.UTC) }

	s.RunOnce()

	if len(runner.dates) != 1 {
		t.Fatalf("runner called %d times, expected 1", len(runner.dates))
	}
	if runner.dates[0] != (civil.Date{Year: 2023, Month: time.February, Day: 1}) {
		t.Errorf("run date = %s", runner.dates[0])
	}
}

func TestRunOnceLogsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	runner := &fakeRunner{err: errors.New("index missing")}
	s := New(runner, "0 6 1 * *", zap.New(core))

	s.RunOnce()

	if logs.FilterMessage("scheduled regulation run failed").Len() != 1 {
		t.Errorf("expected one failure log entry, got %d entries", logs.Len())
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(&fakeRunner{}, "not a schedule", nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestStartStop(t *testing.T) {
	s := New(&fakeRunner{}, "@monthly", nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start() unexpected error: %v", err)
	}
	if len(s.cron.Entries()) != 1 {
		t.Errorf("expected one scheduled entry, got %d", len(s.cron.Entries()))
	}
	s.Stop()
	s.Stop()
}
