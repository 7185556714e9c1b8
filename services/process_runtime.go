package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/cores"
	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/proc"
	"tunnel-panel/internal/utils"
)

// UnitState is the runtime view of one tunnel
type UnitState struct {
	Status       models.RunStatus
	Error        string
	RestartCount int
	Process      *models.ProcessDetail
}

/**
 * Runtime brings tunnels up and down on the panel host
 * @description
 * - Start replaces any unit already running for the tunnel id
 * - State reports false when no unit exists for the id
 * - Active lists the ids of units that are still alive
 */
type Runtime interface {
	Start(ctx context.Context, plan *cores.LaunchPlan) error
	Stop(id string) error
	State(id string) (UnitState, bool)
	Active() []string
	StopAll()
}

// oneShotTimeout bounds wg-quick up/down
const oneShotTimeout = 30 * time.Second

type runtimeUnit struct {
	plan *cores.LaunchPlan
	proc *proc.ProcessInstance
}

/**
 * ProcessRuntime runs tunnel cores as supervised child processes
 * @property {func() config.SupervisorConfig} settings - Read on every launch so a reload applies to the next start
 * @property {func(string, UnitState)} onChanged - Called when a unit exits or restarts by itself
 * @description
 * - Start and Stop for the same id are serialized, a unit is never launched
 *   while another one for that id is still being brought up or down
 */
type ProcessRuntime struct {
	settings  func() config.SupervisorConfig
	onChanged func(id string, st UnitState)
	units     map[string]*runtimeUnit
	locks     map[string]*sync.Mutex
	mutex     sync.Mutex
}

func NewProcessRuntime(settings func() config.SupervisorConfig, onChanged func(id string, st UnitState)) *ProcessRuntime {
	return &ProcessRuntime{
		settings:  settings,
		onChanged: onChanged,
		units:     make(map[string]*runtimeUnit),
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockUnit 按隧道id串行化启动/停止
func (r *ProcessRuntime) lockUnit(id string) func() {
	r.mutex.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	r.mutex.Unlock()
	l.Lock()
	return l.Unlock
}

func writeConfigFile(plan *cores.LaunchPlan) error {
	if err := os.MkdirAll(filepath.Dir(plan.ConfigPath), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(plan.ConfigPath, plan.Config, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func warnBusyPorts(plan *cores.LaunchPlan) {
	for _, p := range plan.Ports {
		if !utils.PortListenable(p.Proto, p.Port) {
			logger.Warnf("Tunnel '%s': port %s is already in use on this host", plan.Title, p)
		}
	}
}

func stateOf(pi *proc.ProcessInstance) UnitState {
	d := pi.GetDetail()
	return UnitState{
		Status:       d.Status,
		Error:        d.LastExitReason,
		RestartCount: d.RestartCount,
		Process:      &d,
	}
}

/**
 * Launch a tunnel
 * @param {context.Context} ctx - Bounds the startup observation and one-shot commands
 * @param {*cores.LaunchPlan} plan - Rendered config and command line
 * @returns {error} Launch failure, including the process output when it died during startup
 */
func (r *ProcessRuntime) Start(ctx context.Context, plan *cores.LaunchPlan) error {
	unlock := r.lockUnit(plan.TunnelID)
	defer unlock()

	if err := r.stopUnit(plan.TunnelID); err != nil {
		logger.Warnf("Tunnel '%s': stop previous unit: %v", plan.Title, err)
	}
	if err := writeConfigFile(plan); err != nil {
		return err
	}
	warnBusyPorts(plan)

	if plan.OneShot {
		ctx, cancel := context.WithTimeout(ctx, oneShotTimeout)
		defer cancel()
		if err := proc.RunOnce(ctx, plan.Command, plan.Args); err != nil {
			return err
		}
		r.mutex.Lock()
		r.units[plan.TunnelID] = &runtimeUnit{plan: plan}
		r.mutex.Unlock()
		return nil
	}

	cfg := r.settings()
	pi := proc.NewProcessInstance(plan.Title, plan.Command, plan.Args)
	pi.Fallback = plan.Fallback
	pi.SetWatcher(proc.WatchOptions{
		MaxRestart:   cfg.MaxRestart,
		RestartDelay: cfg.RestartDelay,
		StartupGrace: cfg.StartupGrace,
		StopTimeout:  cfg.StopTimeout,
	}, func(p *proc.ProcessInstance) {
		if r.onChanged != nil {
			r.onChanged(plan.TunnelID, stateOf(p))
		}
	})

	r.mutex.Lock()
	r.units[plan.TunnelID] = &runtimeUnit{plan: plan, proc: pi}
	r.mutex.Unlock()

	return pi.StartProcess(ctx)
}

/**
 * Bring a tunnel down and delete its config file
 * @param {string} id - Tunnel id
 * @returns {error} nil when nothing was running
 */
func (r *ProcessRuntime) Stop(id string) error {
	unlock := r.lockUnit(id)
	defer unlock()
	return r.stopUnit(id)
}

// stopUnit 调用方需持有该id的锁
func (r *ProcessRuntime) stopUnit(id string) error {
	r.mutex.Lock()
	unit, ok := r.units[id]
	delete(r.units, id)
	r.mutex.Unlock()
	if !ok {
		return nil
	}

	var err error
	if unit.proc != nil {
		err = unit.proc.StopProcess()
	} else if unit.plan.DownCommand != "" {
		ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
		err = proc.RunOnce(ctx, unit.plan.DownCommand, unit.plan.DownArgs)
		cancel()
	}
	if rmErr := os.Remove(unit.plan.ConfigPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warnf("Tunnel '%s': remove config: %v", unit.plan.Title, rmErr)
	}
	return err
}

func (r *ProcessRuntime) State(id string) (UnitState, bool) {
	r.mutex.Lock()
	unit, ok := r.units[id]
	r.mutex.Unlock()
	if !ok {
		return UnitState{}, false
	}
	if unit.proc == nil {
		return UnitState{Status: models.StatusRunning}, true
	}
	unit.proc.CheckProcess()
	return stateOf(unit.proc), true
}

// Active 只返回仍在运行(或正在等待自动重启)的单元
func (r *ProcessRuntime) Active() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var ids []string
	for id, unit := range r.units {
		if unit.proc == nil {
			ids = append(ids, id)
			continue
		}
		switch unit.proc.GetDetail().Status {
		case models.StatusRunning, models.StatusExited:
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *ProcessRuntime) StopAll() {
	r.mutex.Lock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	r.mutex.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Stop(id); err != nil {
				logger.Errorf("Stop tunnel %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
}
