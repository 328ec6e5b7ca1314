package notify

import (
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
)

// Notifier 通知能力，由调用方注入，引擎不依赖任何UI运行时
type Notifier interface {
	// Notify 向指定地址的用户发送通知
	Notify(address string, message string)
}

// LogNotifier 默认实现，通知写入日志
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(address string, message string) {
	logger.Info("Notify %s: %s", address, message)
}
