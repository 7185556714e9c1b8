//go:build !windows

package utils

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// SetNewPG 子进程放入独立进程组，终端的Ctrl-C不会直接打断隧道进程，由面板负责有序停止
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// signalGroup 向整个进程组发信号，包装脚本派生的孙进程一起退出
func signalGroup(process *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-process.Pid, sig); err == nil {
		return nil
	}
	// 进程组已不存在时退回到单个进程
	return process.Signal(sig)
}

// TerminateProcess 发送SIGTERM，让进程有机会清理
func TerminateProcess(process *os.Process) error {
	if err := signalGroup(process, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process with PID %d: %v", process.Pid, err)
	}
	return nil
}

// KillProcess 强杀进程组
func KillProcess(process *os.Process) error {
	if err := signalGroup(process, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process with PID %d: %w", process.Pid, err)
	}
	return nil
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("failed to find process with PID %d: %v", pid, err)
	}
	// 发送signal 0来检查进程是否存在
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}
