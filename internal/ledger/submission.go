package ledger

import (
	"sync"
)

// FailureReason 提交失败原因。区分原因是为了让调用方决定重试（超时）
// 还是回滚并上报（拒绝签名、余额不足、合约回滚）。
type FailureReason string

const (
	FailureRejected          FailureReason = "rejected"           // 签名器拒绝或预检失败
	FailureInsufficientFunds FailureReason = "insufficient_funds" // 余额不足
	FailureTimeout           FailureReason = "timeout"            // 超时未出结果
	FailureReverted          FailureReason = "reverted"           // 已打包但执行回滚
)

// Retryable 是否可以安全重试
func (r FailureReason) Retryable() bool {
	return r == FailureTimeout
}

// Outcome 提交的最终结果，每个提交恰好产生一次。
// 回执状态约定：1 为成功，0 为失败。
type Outcome struct {
	Mined     bool
	Reason    FailureReason // Mined 为 false 时有效
	Err       error
	BlockNum  uint64
	Transfers []Transfer // 从回执日志解析出的质押转移
}

// Submission 链上提交句柄。交易进入内存池后立即返回，
// 结果（打包/失败）稍后通过 Done 通道异步送达，恰好一次。
type Submission struct {
	Hash string

	done chan Outcome
	once sync.Once
}

// NewSubmission 创建提交句柄
func NewSubmission(hash string) *Submission {
	return &Submission{
		Hash: hash,
		done: make(chan Outcome, 1),
	}
}

// Resolve 写入最终结果，重复调用只有第一次生效
func (s *Submission) Resolve(o Outcome) {
	s.once.Do(func() {
		s.done <- o
	})
}

// Done 结果通道
func (s *Submission) Done() <-chan Outcome {
	return s.done
}

// Transfer 链上观测到的质押转移事件
type Transfer struct {
	PledgeId    int64
	FromAdminId int64
	ToAdminId   int64
	Amount      int64
	TxHash      string
	BlockNum    int64
	LogIndex    int64
}

// Withdrawn 链上观测到的质押提现事件
type Withdrawn struct {
	PledgeId  int64
	Recipient string
	Amount    int64
	TxHash    string
	BlockNum  int64
	LogIndex  int64
}

// ProjectAdded 链上观测到的实体注册事件
type ProjectAdded struct {
	AdminId  int64
	Addr     string
	TxHash   string
	BlockNum int64
	LogIndex int64
}
