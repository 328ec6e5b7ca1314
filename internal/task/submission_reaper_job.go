package task

import (
	"context"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/go-co-op/gocron/v2"
)

// TxChecker 查询交易在链上的当前状态
type TxChecker interface {
	CheckTransaction(ctx context.Context, txHash string) (mined bool, success bool, err error)
}

// SubmissionReaperJob 孤儿提交回收任务。
// 进程重启会丢掉内存中的监视协程，留下带乐观标记但无人等待结果的行。
// 本任务找出这些行：交易确实上链的留给事件监控对账，从未上链的回滚。
type SubmissionReaperJob struct {
	idx     *index.Index
	checker TxChecker
	config  *config.Config
}

// NewSubmissionReaperJob 创建孤儿提交回收任务
func NewSubmissionReaperJob(idx *index.Index, checker TxChecker, cfg *config.Config) *SubmissionReaperJob {
	return &SubmissionReaperJob{
		idx:     idx,
		checker: checker,
		config:  cfg,
	}
}

// GetName 获取任务名称
func (j *SubmissionReaperJob) GetName() string {
	return "submission_reaper"
}

// GetSchedule 获取调度配置
func (j *SubmissionReaperJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Engine.SweepInterval) * time.Second)
}

// Execute 执行任务
func (j *SubmissionReaperJob) Execute() {
	// 超过两个提交周期仍带乐观标记的行才算孤儿，
	// 避免误伤正在正常监视中的提交
	cutoff := time.Now().Add(-2 * j.config.Engine.SubmitTimeoutDuration())

	donations, err := j.idx.ListDangling(cutoff)
	if err != nil {
		logger.Error("Failed to fetch dangling submissions: %v", err)
		return
	}

	if len(donations) == 0 {
		return
	}

	logger.Info("Submission reaper found %d dangling optimistic rows", len(donations))

	recoveredCount := 0
	for i := range donations {
		d := &donations[i]
		if d.SubmissionHash == nil {
			continue
		}

		// 本进程仍在监视该提交，交给监视协程处理
		if j.idx.Tracked(*d.SubmissionHash) {
			continue
		}

		mined, _, err := j.checker.CheckTransaction(context.Background(), *d.SubmissionHash)
		if err != nil {
			logger.Error("Failed to check tx %s for donation %d: %v", *d.SubmissionHash, d.Id, err)
			continue
		}
		if mined {
			// 已上链：结果以链上事件为准，事件监控会完成对账
			logger.Debug("Tx %s for donation %d is mined, leaving to event monitor", *d.SubmissionHash, d.Id)
			continue
		}

		if err := j.idx.RecoverDangling(d); err != nil {
			logger.Error("Failed to recover dangling donation %d: %v", d.Id, err)
			continue
		}
		recoveredCount++
	}

	if recoveredCount > 0 {
		logger.Info("Submission reaper rolled back %d dangling rows", recoveredCount)
	}
}
