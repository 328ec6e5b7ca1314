package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/index"
	"github.com/Giveth/giveth-dapp-sub001/internal/ledger"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/Giveth/giveth-dapp-sub001/internal/model"
	"github.com/Giveth/giveth-dapp-sub001/internal/registry"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// LedgerMonitor 账本事件监控器。轮询合约日志并送入索引对账，
// 这是乐观索引与链上事实之间的唯一对账来源。
type LedgerMonitor struct {
	ledger *ledger.Client
	db     *gorm.DB
	idx    *index.Index
	reg    *registry.Registry
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex // 保护 startBlockNum 的并发访问
	startBlockNum int64

	retryCount      int
	backoffDuration time.Duration
}

// NewLedgerMonitor 创建事件监控器
func NewLedgerMonitor(lc *ledger.Client, db *gorm.DB, idx *index.Index, reg *registry.Registry, cfg *config.Config) *LedgerMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &LedgerMonitor{
		ledger:          lc,
		db:              db,
		idx:             idx,
		reg:             reg,
		cfg:             cfg,
		ctx:             ctx,
		cancel:          cancel,
		backoffDuration: time.Second * 5,
	}
}

// Start 启动监控
func (m *LedgerMonitor) Start() error {
	logger.Info("Starting ledger event monitor")

	// 测试 RPC 连接
	currentBlock, err := m.ledger.LatestBlock()
	if err != nil {
		return fmt.Errorf("failed to connect to chain: %w", err)
	}
	logger.Info("Connected to chain, current block: %d", currentBlock)

	startBlock := m.resolveStartBlock()
	m.mu.Lock()
	m.startBlockNum = startBlock
	m.mu.Unlock()

	logger.Info("Starting monitor from block %d", startBlock)

	go m.loop()

	return nil
}

// Stop 停止监控
func (m *LedgerMonitor) Stop() {
	logger.Info("Stopping ledger event monitor")
	m.cancel()
}

// loop 监控循环
func (m *LedgerMonitor) loop() {
	interval := time.Duration(m.cfg.Engine.MonitorInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Info("Monitor stopped")
			return
		case <-ticker.C:
			currentBlock, err := m.ledger.LatestBlock()
			if err != nil {
				logger.Error("Failed to get current block number: %v", err)
				m.handleError(err)
				continue
			}

			m.mu.RLock()
			from := m.startBlockNum
			m.mu.RUnlock()

			if from > int64(currentBlock) {
				continue
			}

			if err := m.processBlocksInBatches(from, int64(currentBlock)); err != nil {
				logger.Error("Error processing blocks: %v", err)
				m.handleError(err)
			}
		}
	}
}

// processBlocksInBatches 分批处理区块，避免单次请求过大触发API限制
func (m *LedgerMonitor) processBlocksInBatches(fromBlock, toBlock int64) error {
	batchSize := int64(m.cfg.Engine.MonitorBatchSize)
	if batchSize <= 0 {
		batchSize = 500
	}

	for currentFrom := fromBlock; currentFrom <= toBlock; currentFrom += batchSize {
		currentTo := currentFrom + batchSize - 1
		if currentTo > toBlock {
			currentTo = toBlock
		}

		if err := m.processBatch(currentFrom, currentTo); err != nil {
			if m.isRateLimitError(err) {
				return err
			}
			logger.Error("Error processing blocks %d-%d: %v", currentFrom, currentTo, err)
			continue
		}

		m.updateStartBlockNum(currentTo + 1)

		time.Sleep(time.Millisecond * 500)
	}

	return nil
}

// processBatch 处理一个区块区间的日志。
// 按质押ID分组：同一质押的事件按区块顺序串行处理（保证单条记录的
// 转换顺序），不同质押的分组用临时协程池并发。
func (m *LedgerMonitor) processBatch(fromBlock, toBlock int64) error {
	logs, err := m.ledger.GetLogs(fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("error getting logs for blocks %d-%d: %w", fromBlock, toBlock, err)
	}

	if len(logs) == 0 {
		return nil
	}

	logger.Debug("Found %d logs for blocks %d-%d", len(logs), fromBlock, toBlock)

	groups := m.groupLogsByPledge(logs)
	if len(groups) == 0 {
		return nil
	}

	tempPool, err := ants.NewPool(len(groups))
	if err != nil {
		return fmt.Errorf("failed to create temporary pool for %d groups: %w", len(groups), err)
	}
	defer tempPool.Release()

	var wg sync.WaitGroup
	for _, group := range groups {
		group := group
		wg.Add(1)
		err := tempPool.Submit(func() {
			defer wg.Done()
			for _, log := range group {
				if err := m.processLog(log); err != nil {
					logger.Error("Error processing log %s/%d: %v", log.TxHash.Hex(), log.Index, err)
				}
			}
		})
		if err != nil {
			wg.Done()
			logger.Error("Failed to submit task to pool: %v", err)
		}
	}
	wg.Wait()

	return nil
}

// groupLogsByPledge 按质押ID（topic1）分组，非质押事件归入0组
func (m *LedgerMonitor) groupLogsByPledge(logs []types.Log) map[string][]types.Log {
	groups := make(map[string][]types.Log)
	for _, log := range logs {
		key := "0"
		if name := m.ledger.EventName(log); (name == "PledgeTransferred" || name == "PledgeWithdrawn") && len(log.Topics) > 1 {
			key = log.Topics[1].Hex()
		}
		groups[key] = append(groups[key], log)
	}
	return groups
}

// processLog 处理单条日志：记账去重后路由到索引或注册表
func (m *LedgerMonitor) processLog(log types.Log) error {
	name := m.ledger.EventName(log)
	if name == "" {
		logger.Debug("Unknown event signature in tx %s, skipped", log.TxHash.Hex())
		return nil
	}

	// 去重：同一 (txHash, logIndex) 只处理一次
	var count int64
	if err := m.db.Model(&model.EventModel{}).
		Where("tx_hash = ? AND log_index = ?", log.TxHash.Hex(), int64(log.Index)).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	event := &model.EventModel{
		ContractAddress: m.ledger.ContractAddress().Hex(),
		EventName:       name,
		TxHash:          log.TxHash.Hex(),
		BlockNum:        int64(log.BlockNumber),
		LogIndex:        int64(log.Index),
	}
	if data, err := json.Marshal(map[string]interface{}{
		"topics": log.Topics,
		"data":   log.Data,
	}); err == nil {
		event.Data = string(data)
	}
	if err := m.db.Create(event).Error; err != nil {
		return err
	}

	if err := m.dispatch(name, log); err != nil {
		return err
	}

	return m.db.Model(event).Update("processed", true).Error
}

// dispatch 按事件类型路由
func (m *LedgerMonitor) dispatch(name string, log types.Log) error {
	switch name {
	case "PledgeTransferred":
		if t, ok := m.ledger.ParseTransferLog(log); ok {
			return m.idx.ApplyTransfer(t)
		}
	case "PledgeWithdrawn":
		if w, ok := m.ledger.ParseWithdrawnLog(log); ok {
			return m.idx.ApplyWithdrawn(w)
		}
	case "ProjectAdded":
		if p, ok := m.ledger.ParseProjectAddedLog(log); ok {
			err := m.reg.ConfirmOnLedger(p.TxHash, p.AdminId)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 不是本服务创建的实体，忽略
				return nil
			}
			return err
		}
	}
	return nil
}

// resolveStartBlock 起始区块 = max(合约部署区块, 已处理的最大区块+1)
func (m *LedgerMonitor) resolveStartBlock() int64 {
	deployBlock := m.cfg.Chain.Contract.BlockNum

	var maxProcessedBlock int64
	err := m.db.Model(&model.EventModel{}).
		Select("COALESCE(MAX(block_num), 0)").
		Scan(&maxProcessedBlock).Error
	if err != nil {
		logger.Error("Failed to get max processed block from database: %v", err)
		return deployBlock
	}

	if maxProcessedBlock >= deployBlock {
		return maxProcessedBlock + 1
	}
	return deployBlock
}

// updateStartBlockNum 更新起始区块号
func (m *LedgerMonitor) updateStartBlockNum(blockNum int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startBlockNum = blockNum
}

// isRateLimitError 是否为节点限流错误
func (m *LedgerMonitor) isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// handleError 指数退避
func (m *LedgerMonitor) handleError(err error) {
	m.retryCount++
	if m.retryCount > 5 {
		m.backoffDuration = time.Minute * 5
	} else {
		m.backoffDuration = time.Duration(m.retryCount) * time.Second * 10
	}
	logger.Error("Monitor encountered error (retry %d, backoff %s): %v", m.retryCount, m.backoffDuration, err)
	time.Sleep(m.backoffDuration)
}
