package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guojianbin/TinyCron/internal/client"
	"github.com/guojianbin/TinyCron/internal/config"
	"github.com/guojianbin/TinyCron/internal/cronexpr"
	"github.com/guojianbin/TinyCron/internal/executor"
	"github.com/guojianbin/TinyCron/internal/scheduler"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	result *executor.Result
	err    error
	got    executor.Spec
}

func (f *fakeRunner) Run(_ context.Context, spec executor.Spec) (*executor.Result, error) {
	f.got = spec
	return f.result, f.err
}

type fixedLoad struct {
	value float64
	err   error
}

func (f fixedLoad) Load1(context.Context) (float64, error) { return f.value, f.err }

func TestNewBase(t *testing.T) {
	base, err := NewBase("backup", "nightly", "  0 2 * * *  ")
	if err != nil {
		t.Fatalf("NewBase: %v", err)
	}
	if base.ID() != "backup" || base.Description() != "nightly" || base.ScheduleText() != "0 2 * * *" {
		t.Errorf("base = %+v", base)
	}
	if base.Schedule().Format() != "0 2 * * *" {
		t.Errorf("Schedule().Format() = %q", base.Schedule().Format())
	}

	_, err = NewBase("bad", "", "0 25 * * *")
	if !errors.Is(err, cronexpr.ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if err != nil && !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q does not name the job", err)
	}
}

func TestFuncJob(t *testing.T) {
	boom := errors.New("boom")
	j, err := NewFunc("f", "", "* * * * *", func(context.Context) error { return boom })
	if err != nil {
		t.Fatalf("NewFunc: %v", err)
	}
	if err := j.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() = %v", err)
	}
}

func TestShellJob(t *testing.T) {
	base, _ := NewBase("sh", "", "* * * * *")

	tests := []struct {
		name     string
		result   *executor.Result
		runErr   error
		wantCode int
		wantErr  bool
		timedOut bool
	}{
		{name: "success", result: &executor.Result{ExitCode: 0}},
		{name: "non-zero exit", result: &executor.Result{ExitCode: 2, Stderr: "disk full"}, wantErr: true, wantCode: 2},
		{name: "timeout", result: &executor.Result{ExitCode: -1, TimedOut: true}, wantErr: true, wantCode: -1, timedOut: true},
		{name: "spawn failure", runErr: errors.New("no such interpreter"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: tt.result, err: tt.runErr}
			j := NewShell(base, runner, executor.Spec{Command: "true"})

			err := j.Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() = %v, wantErr %v", err, tt.wantErr)
			}
			if runner.got.Command != "true" {
				t.Errorf("runner got %+v", runner.got)
			}

			var cmdErr *CommandError
			if tt.result != nil && tt.wantErr {
				if !errors.As(err, &cmdErr) {
					t.Fatalf("err = %T, want *CommandError", err)
				}
				if cmdErr.ExitStatus() != tt.wantCode || cmdErr.TimedOut != tt.timedOut {
					t.Errorf("CommandError = %+v", cmdErr)
				}
			}
		})
	}
}

func TestShellJob_RealCommand(t *testing.T) {
	base, _ := NewBase("real", "", "* * * * *")
	j := NewShell(base, executor.New(), executor.Spec{Command: "echo oops >&2; exit 4", Timeout: 10 * time.Second})

	err := j.Run(context.Background())
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 4 || cmdErr.Output != "oops" {
		t.Errorf("CommandError = %+v", cmdErr)
	}
}

func TestHTTPJob(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, "nope")
	}))
	defer srv.Close()

	c := client.New(nopLogger())
	c.SetRetry(0, time.Millisecond, time.Millisecond)

	base, _ := NewBase("ping", "", "* * * * *")
	j := NewHTTP(base, c, client.Request{Method: http.MethodPost, URL: srv.URL})

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("2xx Run() = %v", err)
	}

	status = http.StatusForbidden
	err := j.Run(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Run() = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusForbidden || statusErr.Body != "nope" {
		t.Errorf("StatusError = %+v", statusErr)
	}
}

func TestGuarded(t *testing.T) {
	ran := 0
	inner, _ := NewFunc("g", "", "* * * * *", func(context.Context) error { ran++; return nil })

	t.Run("below limit runs", func(t *testing.T) {
		ran = 0
		g := NewGuarded(inner, fixedLoad{value: 0.5}, 2, nopLogger())
		if err := g.Run(context.Background()); err != nil || ran != 1 {
			t.Errorf("Run() = %v, ran = %d", err, ran)
		}
	})

	t.Run("above limit skips", func(t *testing.T) {
		ran = 0
		g := NewGuarded(inner, fixedLoad{value: 3.1}, 2, nopLogger())
		err := g.Run(context.Background())
		if !errors.Is(err, ErrSkipped) || !errors.Is(err, scheduler.ErrSkipped) {
			t.Errorf("Run() = %v, want ErrSkipped", err)
		}
		if ran != 0 {
			t.Error("job ran above the load limit")
		}
	})

	t.Run("unreadable load runs", func(t *testing.T) {
		ran = 0
		g := NewGuarded(inner, fixedLoad{err: errors.New("no /proc")}, 2, nopLogger())
		if err := g.Run(context.Background()); err != nil || ran != 1 {
			t.Errorf("Run() = %v, ran = %d", err, ran)
		}
	})

	t.Run("keeps identity", func(t *testing.T) {
		g := NewGuarded(inner, fixedLoad{}, 2, nopLogger())
		if g.ID() != "g" || g.ScheduleText() != "* * * * *" {
			t.Errorf("identity = %s %s", g.ID(), g.ScheduleText())
		}
	})
}

func TestFromConfig(t *testing.T) {
	deps := Deps{
		Runner:    &fakeRunner{result: &executor.Result{}},
		Requester: client.New(nopLogger()),
		Load:      fixedLoad{},
		Logger:    nopLogger(),
	}

	tests := []struct {
		name string
		cfg  config.JobConfig
		want string
	}{
		{
			name: "shell",
			cfg:  config.JobConfig{ID: "a", Schedule: "* * * * *", Command: "date", Timeout: 5},
			want: "*job.ShellJob",
		},
		{
			name: "http",
			cfg:  config.JobConfig{ID: "b", Schedule: "* * * * *", HTTP: &config.HTTPConfig{URL: "https://example.com"}},
			want: "*job.HTTPJob",
		},
		{
			name: "guarded",
			cfg:  config.JobConfig{ID: "c", Schedule: "* * * * *", Command: "date", MaxLoad: 1.5},
			want: "*job.Guarded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := FromConfig(tt.cfg, deps)
			if err != nil {
				t.Fatalf("FromConfig: %v", err)
			}
			if got := typeName(j); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
			if j.ID() != tt.cfg.ID {
				t.Errorf("ID() = %s", j.ID())
			}
		})
	}
}

func TestFromConfig_ShellSpec(t *testing.T) {
	runner := &fakeRunner{result: &executor.Result{}}
	j, err := FromConfig(config.JobConfig{
		ID:          "script",
		Schedule:    "0 * * * *",
		Command:     "echo hi",
		Interpreter: "bash",
		PTY:         true,
		Timeout:     7,
	}, Deps{Runner: runner})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := executor.Spec{Command: "echo hi", Interpreter: "bash", PTY: true, Timeout: 7 * time.Second}
	if runner.got.Command != want.Command || runner.got.Interpreter != want.Interpreter ||
		runner.got.PTY != want.PTY || runner.got.Timeout != want.Timeout {
		t.Errorf("spec = %+v, want %+v", runner.got, want)
	}
}

func TestBuildAll_CollectsErrors(t *testing.T) {
	cfgs := []config.JobConfig{
		{ID: "ok", Schedule: "* * * * *", Command: "date"},
		{ID: "broken", Schedule: "* * *", Command: "date"},
		{ID: "ok2", Schedule: "@daily", Command: "date"},
	}
	jobs, err := BuildAll(cfgs, Deps{Runner: &fakeRunner{}})
	if len(jobs) != 1 || jobs[0].ID() != "ok" {
		t.Errorf("built %d jobs", len(jobs))
	}
	if !errors.Is(err, cronexpr.ErrWrongFieldCount) {
		t.Errorf("err = %v, want ErrWrongFieldCount", err)
	}
	if err == nil || !strings.Contains(err.Error(), "broken") || !strings.Contains(err.Error(), "ok2") {
		t.Errorf("err = %v, want both failing ids", err)
	}
}

func typeName(j scheduler.Job) string {
	switch j.(type) {
	case *ShellJob:
		return "*job.ShellJob"
	case *HTTPJob:
		return "*job.HTTPJob"
	case *Guarded:
		return "*job.Guarded"
	case *FuncJob:
		return "*job.FuncJob"
	}
	return "unknown"
}
