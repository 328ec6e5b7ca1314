package task

import (
	"context"
	"errors"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/metrics"
	"github.com/Giveth/giveth-dapp-sub001/internal/workflow"
	"github.com/go-co-op/gocron/v2"
)

// CommitWindowJob 确认窗口扫描任务。
// 窗口过期的委派提议视为默认同意，走与手动批准相同的路径自动提交。
type CommitWindowJob struct {
	idx    *index.Index
	wf     *workflow.DelegationWorkflow
	config *config.Config
}

// NewCommitWindowJob 创建确认窗口扫描任务
func NewCommitWindowJob(idx *index.Index, wf *workflow.DelegationWorkflow, cfg *config.Config) *CommitWindowJob {
	return &CommitWindowJob{
		idx:    idx,
		wf:     wf,
		config: cfg,
	}
}

// GetName 获取任务名称
func (j *CommitWindowJob) GetName() string {
	return "commit_window_sweeper"
}

// GetSchedule 获取调度配置
func (j *CommitWindowJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(time.Duration(j.config.Engine.SweepInterval) * time.Second)
}

// Execute 执行任务
func (j *CommitWindowJob) Execute() {
	logger.Debug("Starting commit window sweep")
	metrics.Sweeps.Inc()

	now := time.Now()
	donations, err := j.idx.ListExpiredProposals(now)
	if err != nil {
		logger.Error("Failed to fetch expired proposals: %v", err)
		return
	}

	if len(donations) == 0 {
		return
	}

	committedCount := 0
	for _, d := range donations {
		_, err := j.wf.Approve(context.Background(), d.Id, "system")
		if err != nil {
			if errors.Is(err, index.ErrPledgeBusy) {
				// 该质押有在途操作，下轮扫描再处理
				logger.Debug("Donation %d pledge busy, skipped", d.Id)
				continue
			}
			if errors.Is(err, workflow.ErrInvalidState) {
				// 扫描间隙内状态已变化（手动批准或事件对账），幂等跳过
				continue
			}
			logger.Error("Failed to auto-commit donation %d: %v", d.Id, err)
			continue
		}
		metrics.AutoCommits.Inc()
		committedCount++
	}

	logger.Info("Commit window sweep completed, auto-committed %d of %d expired proposals",
		committedCount, len(donations))
}
