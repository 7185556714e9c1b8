package models

import "time"

type RunStatus string

const (
	// 已保存，尚未完成首次启动
	StatusPending RunStatus = "pending"
	// 表示正在运行
	StatusRunning RunStatus = "running"
	//	表示进程退出，监测流程会按重启次数上限自动重启
	StatusExited RunStatus = "exited"
	// 表示启动失败或重启次数耗尽，周期检测流程会尝试重新启动
	StatusError RunStatus = "error"
	// 表示被用户手动停止，周期检测流程不会尝试重启，用户通过启动命令可以手动启动
	StatusStopped RunStatus = "stopped"
	// 扩展核心，面板只保存记录，不负责启动
	StatusUnmanaged RunStatus = "unmanaged"
)

type ProcessDetail struct {
	Title           string    `json:"title"`           //显示用的名字
	Command         string    `json:"command"`         //进程启动命令
	Args            []string  `json:"args"`            //进程参数
	MaxRestartCount int       `json:"maxRestartCount"` //最大重启次数
	Pid             int       `json:"pid"`             //进程PID
	Status          RunStatus `json:"status"`          //状态
	RestartCount    int       `json:"restartCount"`    //重启次数
	StartTime       time.Time `json:"startTime"`       //启动时间
	LastExitTime    time.Time `json:"lastExitTime"`    //最后一次退出的时间
	LastExitReason  string    `json:"lastExitReason"`  //最后一次退出的原因
}
