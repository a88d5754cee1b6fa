package transcribe

import (
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestEngineCommandArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := EngineCommand{Binary: "./stream", Model: "models/ggml-base.bin"}
		want := "-m models/ggml-base.bin -l auto -t 8 --step 2000 --length 8000"
		if got := strings.Join(c.Args(), " "); got != want {
			t.Errorf("Args = %q, want %q", got, want)
		}
	})

	t.Run("explicit_values", func(t *testing.T) {
		c := EngineCommand{Binary: "./stream", Model: "m.bin", Language: "fr", Threads: 4, StepMs: 500, LengthMs: 5000}
		want := "./stream -m m.bin -l fr -t 4 --step 500 --length 5000"
		if got := c.String(); got != want {
			t.Errorf("String = %q, want %q", got, want)
		}
	})
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecLauncher(t *testing.T) {
	t.Run("reads_stdout_until_exit", func(t *testing.T) {
		sh := requireShell(t)
		l := &ExecLauncher{Binary: sh, Args: []string{"-c", "echo one; echo two; echo err >&2"}}

		p, err := l.Launch()
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		defer p.Close()

		out, err := io.ReadAll(p.Output())
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(out) != "one\ntwo\n" {
			t.Errorf("output = %q, want %q", out, "one\ntwo\n")
		}

		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("process not reaped")
		}
		if err := p.ExitErr(); err != nil {
			t.Errorf("ExitErr = %v, want nil", err)
		}
		if err := p.Terminate(time.Second); err != nil {
			t.Errorf("Terminate after exit = %v, want nil", err)
		}
	})

	t.Run("terminate_running_engine", func(t *testing.T) {
		sh := requireShell(t)
		l := &ExecLauncher{Binary: sh, Args: []string{"-c", "exec sleep 30"}}

		p, err := l.Launch()
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		defer p.Close()
		if p.Pid() <= 0 {
			t.Errorf("Pid = %d, want > 0", p.Pid())
		}

		start := time.Now()
		if err := p.Terminate(2 * time.Second); err != nil {
			t.Fatalf("Terminate: %v", err)
		}
		select {
		case <-p.Done():
		default:
			t.Fatal("Done not closed after Terminate")
		}
		if time.Since(start) > 5*time.Second {
			t.Error("terminate took too long")
		}

		// Output reaches EOF once the child is gone.
		if _, err := io.ReadAll(p.Output()); err != nil {
			t.Errorf("ReadAll after terminate: %v", err)
		}
	})

	t.Run("missing_binary", func(t *testing.T) {
		l := &ExecLauncher{Binary: "/nonexistent/whisper-stream"}
		if _, err := l.Launch(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("empty_binary", func(t *testing.T) {
		l := NewExecLauncher(EngineCommand{})
		if _, err := l.Launch(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("close_twice", func(t *testing.T) {
		sh := requireShell(t)
		p, err := (&ExecLauncher{Binary: sh, Args: []string{"-c", "true"}}).Launch()
		if err != nil {
			t.Fatalf("Launch: %v", err)
		}
		<-p.Done()
		if err := p.Close(); err != nil {
			t.Errorf("first Close: %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("second Close: %v", err)
		}
	})
}
