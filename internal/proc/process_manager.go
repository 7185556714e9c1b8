package proc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"tunnel-panel/internal/logger"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"
)

// WatchOptions 监测协程的设置
type WatchOptions struct {
	MaxRestart   int           //最大重启次数(监测程序通过重启解决临时故障)
	RestartDelay time.Duration //重启前的等待时间
	StartupGrace time.Duration //启动后在该时间内退出视为启动失败
	StopTimeout  time.Duration //SIGTERM后等待的时间，超时强杀
}

type processWatcher struct {
	WatchOptions
	onChanged func(*ProcessInstance) //监测到进程重启/退出的回调函数
}

/**
 * ProcessInstance 进程实例信息
 * @property {string} title - 进程标题，用于显示
 * @property {string} command - 执行命令
 * @property {string} fallback - command找不到时使用的备用命令
 * @property {[]string} args - 命令参数
 * @property {string} status - 进程状态: running/exited/stopped/error
 * @property {int} restartCount - 自上次手动启动以来的自动重启次数
 * @property {time.Time} startTime - 启动时间
 * @property {time.Time} lastExitTime - 最后退出时间
 * @property {string} lastExitReason - 最后退出原因
 * @property {processWatcher} watcher - 监控协程设置
 */
type ProcessInstance struct {
	Title          string           //显示用的名字
	Command        string           //进程启动命令
	Fallback       string           //备用启动命令
	Args           []string         //进程参数
	Status         models.RunStatus //状态
	RestartCount   int              //重启次数
	StartTime      time.Time        //启动时间
	LastExitTime   time.Time        //最后一次退出的时间
	LastExitReason string           //最后一次退出的原因
	watcher        processWatcher   //监测协程的设置
	path           string           //实际执行的命令
	process        *os.Process      //当前进程对象
	done           chan struct{}    //当前进程退出时关闭
	starting       bool             //处于启动观察期
	output         *tailBuffer      //stdout+stderr末尾内容
	mutex          sync.Mutex       //保护实例数据一致性的锁
}

/**
 * NewProcessInstance 创建新的进程实例
 * @param {string} title - 进程标题，可以唯一确定一个进程，即使它重启过
 * @param {string} command - 执行命令
 * @param {[]string} args - 命令参数
 * @returns {ProcessInstance} 返回创建的进程实例
 */
func NewProcessInstance(title, command string, args []string) *ProcessInstance {
	return &ProcessInstance{
		Title:   title,
		Command: command,
		Args:    args,
		Status:  models.StatusPending,
		output:  newTailBuffer(outputTailSize),
		watcher: processWatcher{
			WatchOptions: WatchOptions{
				RestartDelay: time.Second,
				StopTimeout:  5 * time.Second,
			},
		},
	}
}

func (pi *ProcessInstance) SetWatcher(opts WatchOptions, onChanged func(*ProcessInstance)) {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	pi.watcher.WatchOptions = opts
	pi.watcher.onChanged = onChanged
}

func (pi *ProcessInstance) pid() int {
	if pi.process == nil {
		return 0
	}
	return pi.process.Pid
}

func (pi *ProcessInstance) Pid() int {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	return pi.pid()
}

// Output 返回进程最近输出的内容
func (pi *ProcessInstance) Output() string {
	return pi.output.String()
}

func (pi *ProcessInstance) GetDetail() models.ProcessDetail {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	command := pi.path
	if command == "" {
		command = pi.Command
	}
	return models.ProcessDetail{
		Title:           pi.Title,
		Command:         command,
		Args:            pi.Args,
		MaxRestartCount: pi.watcher.MaxRestart,
		Status:          pi.Status,
		Pid:             pi.pid(),
		RestartCount:    pi.RestartCount,
		StartTime:       pi.StartTime,
		LastExitTime:    pi.LastExitTime,
		LastExitReason:  pi.LastExitReason,
	}
}

/**
 * StartProcess 启动进程并观察启动期
 * @param {context.Context} ctx - 只用于中断启动观察，不影响进程生命周期
 * @returns {error} 启动失败或在观察期内退出时返回错误，错误信息包含进程输出
 * @description
 * - 手动启动会清零重启计数
 * - command找不到时尝试fallback
 * - 观察期内退出不触发自动重启，直接置为error
 * - 观察期结束后由监控协程负责自动重启
 */
func (pi *ProcessInstance) StartProcess(ctx context.Context) error {
	pi.mutex.Lock()
	if pi.Status == models.StatusRunning && pi.process != nil {
		pi.mutex.Unlock()
		return nil
	}
	pi.RestartCount = 0
	if err := pi.startProcess(); err != nil {
		pi.mutex.Unlock()
		return err
	}
	pi.starting = true
	done := pi.done
	grace := pi.watcher.StartupGrace
	pi.mutex.Unlock()

	if grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-done:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	pi.starting = false
	if pi.Status == models.StatusError {
		return errors.New(pi.LastExitReason)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

func (pi *ProcessInstance) newCommand(path string) *exec.Cmd {
	cmd := exec.Command(path, pi.Args...)
	cmd.Stdout = pi.output
	cmd.Stderr = pi.output
	// 孙进程持有管道时，Wait最多再等这么久
	cmd.WaitDelay = time.Second
	utils.SetNewPG(cmd)
	return cmd
}

func (pi *ProcessInstance) startProcess() error {
	logger.Infof("Executing command: %s %s", pi.Command, strings.Join(pi.Args, " "))
	pi.output.Reset()

	path := pi.Command
	cmd := pi.newCommand(path)
	err := cmd.Start()
	if err != nil && pi.Fallback != "" && isNotFound(err) {
		logger.Warnf("Command '%s' not found, trying '%s'", pi.Command, pi.Fallback)
		path = pi.Fallback
		cmd = pi.newCommand(path)
		err = cmd.Start()
	}
	if err != nil {
		pi.Status = models.StatusError
		pi.LastExitTime = time.Now()
		pi.LastExitReason = fmt.Sprintf("start failed: %v", err)
		logger.Errorf("Failed to start process '%s', error: %v", pi.Title, err)
		return errors.New(pi.LastExitReason)
	}

	pi.path = path
	pi.process = cmd.Process
	pi.done = make(chan struct{})
	pi.Status = models.StatusRunning
	pi.StartTime = time.Now()
	logger.Infof("Process '%s' started (PID: %d)", pi.Title, pi.pid())

	go pi.watchProcess(cmd, pi.done)
	return nil
}

func exitReason(err error) string {
	if err == nil {
		return "exited normally"
	}
	return fmt.Sprintf("exited with error: %v", err)
}

/**
 * watchProcess 监控进程状态的协程
 * @param {*exec.Cmd} cmd - 被监控的命令
 * @param {chan struct{}} done - 进程退出后关闭
 * @description
 * - 用户停止的进程不做处理
 * - 启动观察期内退出视为启动失败
 * - 其它退出按重启上限延迟重启，超过上限置为error
 * - 回调在释放锁之后调用
 */
func (pi *ProcessInstance) watchProcess(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	pi.mutex.Lock()
	close(done)
	if pi.process != cmd.Process {
		pi.mutex.Unlock()
		return
	}
	pid := pi.process.Pid
	pi.process = nil
	pi.LastExitTime = time.Now()

	if pi.Status == models.StatusStopped {
		pi.mutex.Unlock()
		logger.Infof("Process '%s' (PID: %d) stopped by user", pi.Title, pid)
		return
	}

	reason := exitReason(err)
	if tail := pi.output.String(); tail != "" {
		reason += ": " + tail
	}
	if pi.starting {
		pi.Status = models.StatusError
		pi.LastExitReason = "exited during startup, " + reason
		pi.mutex.Unlock()
		logger.Errorf("Process '%s' (PID: %d) %s", pi.Title, pid, pi.LastExitReason)
		return
	}

	pi.LastExitReason = reason
	if pi.RestartCount < pi.watcher.MaxRestart {
		pi.Status = models.StatusExited
		logger.Warnf("Process '%s' (PID: %d) %s, restart in %v (restart: %d/%d)", pi.Title, pid,
			reason, pi.watcher.RestartDelay, pi.RestartCount+1, pi.watcher.MaxRestart)
		time.AfterFunc(pi.watcher.RestartDelay, pi.autoRestart)
	} else {
		pi.Status = models.StatusError
		pi.LastExitReason = reason + " (restart limit reached)"
		logger.Errorf("Process '%s' (PID: %d) has reached maximum restart count (%d), not restarting",
			pi.Title, pid, pi.watcher.MaxRestart)
	}
	onChanged := pi.watcher.onChanged
	pi.mutex.Unlock()

	if onChanged != nil {
		onChanged(pi)
	}
}

// autoRestart 延迟重启，期间被停止或手动启动过则放弃
func (pi *ProcessInstance) autoRestart() {
	pi.mutex.Lock()
	if pi.Status != models.StatusExited {
		pi.mutex.Unlock()
		return
	}
	pi.RestartCount++
	if err := pi.startProcess(); err != nil {
		pi.LastExitReason += " (restart failed)"
	}
	onChanged := pi.watcher.onChanged
	pi.mutex.Unlock()

	if onChanged != nil {
		onChanged(pi)
	}
}

/**
 * StopProcess 停止进程
 * @returns {error} 返回错误信息
 * @description
 * - 先发送SIGTERM，超过StopTimeout仍未退出则强杀
 * - 状态置为stopped，监控协程不会再重启它
 */
func (pi *ProcessInstance) StopProcess() error {
	pi.mutex.Lock()
	pi.Status = models.StatusStopped
	pi.LastExitReason = "stopped by user"
	process := pi.process
	done := pi.done
	timeout := pi.watcher.StopTimeout
	pi.mutex.Unlock()

	if process == nil {
		return nil
	}
	if err := utils.TerminateProcess(process); err != nil {
		logger.Warnf("Process '%s': %v", pi.Title, err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
	}

	logger.Warnf("Process '%s' (PID: %d) did not exit in %v, killing it", pi.Title, process.Pid, timeout)
	if err := utils.KillProcess(process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process '%s': %w", pi.Title, err)
	}
	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("process '%s' (PID: %d) did not exit after kill", pi.Title, process.Pid)
	}
	return nil
}

// CheckProcess 周期检测用，进程已不存在时置为error
func (pi *ProcessInstance) CheckProcess() bool {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.Status != models.StatusRunning || pi.process == nil {
		return false
	}
	running, err := utils.IsProcessRunning(pi.pid())
	if err != nil || !running {
		logger.Warnf("Process '%s' (PID: %d) isn't running", pi.Title, pi.pid())
		pi.Status = models.StatusError
		pi.LastExitReason = "process disappeared"
		return false
	}
	return true
}

/**
 * RunOnce 执行一次性命令(如wg-quick up)并等待结束
 * @param {context.Context} ctx - 超时控制
 * @param {string} command - 命令
 * @param {[]string} args - 参数
 * @returns {error} 命令失败时错误中包含输出
 */
func RunOnce(ctx context.Context, command string, args []string) error {
	logger.Infof("Executing command: %s %s", command, strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s: %w", command, err)
		}
		return fmt.Errorf("%s: %w: %s", command, err, msg)
	}
	return nil
}
