//go:build windows

package utils

import (
	"os"
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// SetNewPG 设置进程属性，使子进程不接收控制台的Ctrl-C
func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: createNewProcessGroup,
	}
}

// TerminateProcess Windows没有SIGTERM，直接结束进程
func TerminateProcess(process *os.Process) error {
	return process.Kill()
}

func KillProcess(process *os.Process) error {
	return process.Kill()
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	process.Release()
	return true, nil
}
