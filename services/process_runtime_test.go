//go:build !windows

package services

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"
)

func fixedSettings(cfg config.SupervisorConfig) func() config.SupervisorConfig {
	return func() config.SupervisorConfig { return cfg }
}

var quickSupervisor = config.SupervisorConfig{
	MaxRestart:   0,
	RestartDelay: 10 * time.Millisecond,
	StartupGrace: 50 * time.Millisecond,
	StopTimeout:  2 * time.Second,
}

func testPlan(t *testing.T, id, command string, args ...string) *cores.LaunchPlan {
	return &cores.LaunchPlan{
		TunnelID:   id,
		Title:      id,
		Core:       models.CoreXray,
		ConfigPath: filepath.Join(t.TempDir(), "xray", id+".json"),
		Config:     []byte(`{"inbounds":[]}`),
		Command:    command,
		Args:       args,
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met in %v", timeout)
}

func processAlive(pid int) bool {
	ok, _ := utils.IsProcessRunning(pid)
	return ok
}

func TestRuntimeStartReplacesUnit(t *testing.T) {
	rt := NewProcessRuntime(fixedSettings(quickSupervisor), nil)
	defer rt.StopAll()

	plan := testPlan(t, "t1", "sleep", "30")
	if err := rt.Start(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(plan.ConfigPath); err != nil || string(data) != string(plan.Config) {
		t.Fatalf("config file = %q, %v", data, err)
	}
	st, ok := rt.State("t1")
	if !ok || st.Status != models.StatusRunning || st.Process == nil {
		t.Fatalf("state = %+v, %v", st, ok)
	}
	first := st.Process.Pid

	if err := rt.Start(context.Background(), testPlan(t, "t1", "sleep", "30")); err != nil {
		t.Fatal(err)
	}
	st, _ = rt.State("t1")
	if st.Process.Pid == first {
		t.Error("second Start kept the old process")
	}
	waitUntil(t, 2*time.Second, func() bool { return !processAlive(first) })
	if ids := rt.Active(); len(ids) != 1 || ids[0] != "t1" {
		t.Errorf("active = %v", ids)
	}
}

func TestRuntimeStopRemovesConfig(t *testing.T) {
	rt := NewProcessRuntime(fixedSettings(quickSupervisor), nil)
	plan := testPlan(t, "t2", "sleep", "30")
	if err := rt.Start(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	st, _ := rt.State("t2")
	pid := st.Process.Pid

	if err := rt.Stop("t2"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(plan.ConfigPath); !os.IsNotExist(err) {
		t.Errorf("config file still present: %v", err)
	}
	if _, ok := rt.State("t2"); ok {
		t.Error("stopped unit still reported")
	}
	if len(rt.Active()) != 0 {
		t.Errorf("active = %v", rt.Active())
	}
	if processAlive(pid) {
		t.Errorf("process %d survived Stop", pid)
	}
	if err := rt.Stop("t2"); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestRuntimeDeadUnitStaysVisible(t *testing.T) {
	var (
		mu      sync.Mutex
		changes []UnitState
	)
	rt := NewProcessRuntime(fixedSettings(quickSupervisor), func(id string, st UnitState) {
		mu.Lock()
		changes = append(changes, st)
		mu.Unlock()
	})
	defer rt.StopAll()

	plan := testPlan(t, "t3", "sh", "-c", "sleep 0.3; echo tunnel closed >&2; exit 1")
	if err := rt.Start(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, 3*time.Second, func() bool {
		st, ok := rt.State("t3")
		return ok && st.Status == models.StatusError
	})

	st, ok := rt.State("t3")
	if !ok || !strings.Contains(st.Error, "tunnel closed") {
		t.Errorf("dead unit state = %+v, %v", st, ok)
	}
	for _, id := range rt.Active() {
		if id == "t3" {
			t.Error("dead unit listed as active")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) == 0 || changes[len(changes)-1].Status != models.StatusError {
		t.Errorf("changes = %+v", changes)
	}
}

func TestRuntimeStartupFailure(t *testing.T) {
	rt := NewProcessRuntime(fixedSettings(config.SupervisorConfig{
		StartupGrace: 500 * time.Millisecond,
		StopTimeout:  time.Second,
	}), nil)
	defer rt.StopAll()

	plan := testPlan(t, "t4", "sh", "-c", "echo bind: address already in use >&2; exit 2")
	err := rt.Start(context.Background(), plan)
	if err == nil || !strings.Contains(err.Error(), "address already in use") {
		t.Fatalf("err = %v", err)
	}
	if st, ok := rt.State("t4"); !ok || st.Status != models.StatusError {
		t.Errorf("state = %+v, %v", st, ok)
	}
}

func TestRuntimeOneShot(t *testing.T) {
	rt := NewProcessRuntime(fixedSettings(quickSupervisor), nil)
	marker := filepath.Join(t.TempDir(), "wg0.state")

	plan := testPlan(t, "wg", "sh", "-c", "echo up > "+marker)
	plan.Core = models.CoreWireGuard
	plan.OneShot = true
	plan.DownCommand = "sh"
	plan.DownArgs = []string{"-c", "echo down > " + marker}

	if err := rt.Start(context.Background(), plan); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(marker); strings.TrimSpace(string(data)) != "up" {
		t.Errorf("after up: %q", data)
	}
	if st, ok := rt.State("wg"); !ok || st.Status != models.StatusRunning {
		t.Errorf("state = %+v, %v", st, ok)
	}
	if ids := rt.Active(); len(ids) != 1 || ids[0] != "wg" {
		t.Errorf("active = %v", ids)
	}

	if err := rt.Stop("wg"); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(marker); strings.TrimSpace(string(data)) != "down" {
		t.Errorf("after down: %q", data)
	}
	if _, err := os.Stat(plan.ConfigPath); !os.IsNotExist(err) {
		t.Errorf("config file still present: %v", err)
	}

	failing := testPlan(t, "wg-bad", "sh", "-c", "echo RTNETLINK answers: Operation not permitted >&2; exit 1")
	failing.OneShot = true
	err := rt.Start(context.Background(), failing)
	if err == nil || !strings.Contains(err.Error(), "Operation not permitted") {
		t.Errorf("err = %v", err)
	}
	if _, ok := rt.State("wg-bad"); ok {
		t.Error("failed one-shot unit must not be recorded")
	}
}

func TestRuntimeConcurrentStartLeavesOneUnit(t *testing.T) {
	rt := NewProcessRuntime(fixedSettings(quickSupervisor), nil)
	pidFile := filepath.Join(t.TempDir(), "pids")

	const tunnels = 8
	var wg sync.WaitGroup
	for i := 0; i < tunnels; i++ {
		id := "t" + strconv.Itoa(i)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				plan := testPlan(t, id, "sh", "-c", "echo $$ >> "+pidFile+"; exec sleep 30")
				if err := rt.Start(context.Background(), plan); err != nil {
					t.Errorf("start %s: %v", id, err)
				}
			}()
		}
	}
	wg.Wait()

	if n := len(rt.Active()); n != tunnels {
		t.Errorf("active units = %d, want %d", n, tunnels)
	}
	rt.StopAll()

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal(err)
	}
	pids := strings.Fields(string(data))
	if len(pids) < tunnels {
		t.Errorf("launches = %d, want at least %d", len(pids), tunnels)
	}
	for _, p := range pids {
		pid, _ := strconv.Atoi(p)
		if processAlive(pid) {
			t.Errorf("process %d survived StopAll", pid)
		}
	}
}

func TestRuntimeReadsSettingsOnStart(t *testing.T) {
	var mu sync.Mutex
	current := quickSupervisor
	rt := NewProcessRuntime(func() config.SupervisorConfig {
		mu.Lock()
		defer mu.Unlock()
		return current
	}, nil)
	defer rt.StopAll()

	if err := rt.Start(context.Background(), testPlan(t, "t5", "sleep", "30")); err != nil {
		t.Fatal(err)
	}
	if st, _ := rt.State("t5"); st.Process.MaxRestartCount != 0 {
		t.Errorf("max restart = %d", st.Process.MaxRestartCount)
	}

	mu.Lock()
	current.MaxRestart = 7
	mu.Unlock()
	if err := rt.Start(context.Background(), testPlan(t, "t5", "sleep", "30")); err != nil {
		t.Fatal(err)
	}
	if st, _ := rt.State("t5"); st.Process.MaxRestartCount != 7 {
		t.Errorf("max restart after reload = %d, want 7", st.Process.MaxRestartCount)
	}
}
