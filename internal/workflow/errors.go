package workflow

import (
	"errors"
)

// 引擎对外的错误分类。校验类错误在本地同步解决，不产生链上往返；
// 链上错误只会在异步对账后通过通知送达。
var (
	// ErrInvalidDelegationTarget 目标实体未上链确认或超出金额上限
	ErrInvalidDelegationTarget = errors.New("无效的委派目标")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("当前状态不允许该操作")
	// ErrCommitWindowElapsed 确认窗口已过，拒绝无效
	ErrCommitWindowElapsed = errors.New("确认窗口已过，委派即将自动提交")
)
