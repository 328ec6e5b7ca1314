package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Giveth/giveth-dapp-sub001/internal/config"
	"github.com/Giveth/giveth-dapp-sub001/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// 质押账本合约ABI定义（简化版）
const pledgeABI = `[
	{
		"type": "function",
		"name": "donate",
		"stateMutability": "payable",
		"inputs": [
			{"name": "idReceiver", "type": "uint64"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "transfer",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "idSender", "type": "uint64"},
			{"name": "idPledge", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "idReceiver", "type": "uint64"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "withdraw",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "idPledge", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "recipient", "type": "address"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "bridgeWithdraw",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "idPledge", "type": "uint256"},
			{"name": "amount", "type": "uint256"},
			{"name": "recipient", "type": "address"},
			{"name": "destChain", "type": "uint64"}
		],
		"outputs": []
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "PledgeTransferred",
		"inputs": [
			{"indexed": true, "name": "idPledge", "type": "uint256"},
			{"indexed": true, "name": "idFrom", "type": "uint64"},
			{"indexed": true, "name": "idTo", "type": "uint64"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "PledgeWithdrawn",
		"inputs": [
			{"indexed": true, "name": "idPledge", "type": "uint256"},
			{"indexed": true, "name": "recipient", "type": "address"},
			{"indexed": false, "name": "amount", "type": "uint256"}
		]
	},
	{
		"anonymous": false,
		"type": "event",
		"name": "ProjectAdded",
		"inputs": [
			{"indexed": true, "name": "idProject", "type": "uint64"},
			{"indexed": true, "name": "addr", "type": "address"}
		]
	}
]`

// 交易gas上限
const txGasLimit = uint64(300000)

// Client 质押账本合约客户端。
// 提交后立即返回提交句柄，打包/失败结果由后台监视协程异步写入句柄。
type Client struct {
	client        *ethclient.Client
	signer        Signer
	contractAddr  common.Address
	contractABI   abi.ABI
	chainId       int64
	confirmations int
	submitTimeout time.Duration
	maxRetries    int
	pollInterval  time.Duration
}

func Init(cfg config.ChainConfig, engine config.EngineConfig) (*Client, error) {
	// 连接链节点
	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain client: %w", err)
	}

	// 创建默认签名器
	signer, err := NewKeyedSigner(cfg.PrivateKey, cfg.ChainId)
	if err != nil {
		return nil, err
	}

	return NewClient(client, signer, cfg, engine)
}

// NewClient 使用外部注入的签名器创建客户端
func NewClient(client *ethclient.Client, signer Signer, cfg config.ChainConfig, engine config.EngineConfig) (*Client, error) {
	// 解析ABI
	parsedABI, err := abi.JSON(strings.NewReader(pledgeABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	return &Client{
		client:        client,
		signer:        signer,
		contractAddr:  common.HexToAddress(cfg.Contract.Address),
		contractABI:   parsedABI,
		chainId:       cfg.ChainId,
		confirmations: engine.Confirmations,
		submitTimeout: engine.SubmitTimeoutDuration(),
		maxRetries:    engine.MaxSubmitRetries,
		pollInterval:  time.Second * 5,
	}, nil
}

// ContractAddress 合约地址
func (c *Client) ContractAddress() common.Address {
	return c.contractAddr
}

// ChainId 本链ID
func (c *Client) ChainId() int64 {
	return c.chainId
}

// SubmitDonation 提交一笔新捐赠，金额随交易转入
func (c *Client) SubmitDonation(ctx context.Context, toAdminId int64, amount int64) (*Submission, error) {
	return c.submit(ctx, "donate", big.NewInt(amount), uint64(toAdminId))
}

// SubmitTransfer 提交质押转移 (fromEntityId, pledgeId, amount, toEntityId)
func (c *Client) SubmitTransfer(ctx context.Context, fromAdminId, pledgeId, amount, toAdminId int64) (*Submission, error) {
	return c.submit(ctx, "transfer", nil,
		uint64(fromAdminId), big.NewInt(pledgeId), big.NewInt(amount), uint64(toAdminId))
}

// SubmitWithdraw 提交提现；destChainId 与本链不同时走跨链桥
func (c *Client) SubmitWithdraw(ctx context.Context, pledgeId, amount int64, toAddr string, destChainId int64) (*Submission, error) {
	recipient := common.HexToAddress(toAddr)
	if destChainId != 0 && destChainId != c.chainId {
		return c.submit(ctx, "bridgeWithdraw", nil,
			big.NewInt(pledgeId), big.NewInt(amount), recipient, uint64(destChainId))
	}
	return c.submit(ctx, "withdraw", nil,
		big.NewInt(pledgeId), big.NewInt(amount), recipient)
}

// submit 构造、签名并广播交易，返回提交句柄
func (c *Client) submit(ctx context.Context, method string, value *big.Int, args ...interface{}) (*Submission, error) {
	data, err := c.contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contractAddr,
		Value:    value,
		Gas:      txGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := c.signer.Sign(tx)
	if err != nil {
		// 签名器拒绝，不重试
		return nil, fmt.Errorf("%s: %w", FailureRejected, err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%s: %w", classifySendError(err), err)
	}

	sub := NewSubmission(signedTx.Hash().Hex())
	logger.Info("Submitted %s tx %s (nonce %d)", method, sub.Hash, nonce)

	go c.watch(sub, signedTx)

	return sub, nil
}

// watch 轮询回执直至确认或超时。超时后重新广播同一笔签名交易
// （相同nonce，不会双花），重试耗尽才判定失败。
func (c *Client) watch(sub *Submission, signedTx *types.Transaction) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(c.submitTimeout)
	retries := 0
	txHash := signedTx.Hash()

	for range ticker.C {
		receipt, err := c.client.TransactionReceipt(context.Background(), txHash)
		if err == nil && receipt != nil {
			if !c.isConfirmed(receipt) {
				continue
			}

			if receipt.Status == types.ReceiptStatusSuccessful {
				sub.Resolve(Outcome{
					Mined:     true,
					BlockNum:  receipt.BlockNumber.Uint64(),
					Transfers: c.transfersFromReceipt(receipt),
				})
			} else {
				sub.Resolve(Outcome{
					Mined:  false,
					Reason: FailureReverted,
					Err:    fmt.Errorf("transaction %s reverted", sub.Hash),
				})
			}
			return
		}

		if time.Now().After(deadline) {
			if retries < c.maxRetries {
				retries++
				deadline = time.Now().Add(c.submitTimeout)
				logger.Warn("Tx %s not mined, rebroadcasting (retry %d/%d)", sub.Hash, retries, c.maxRetries)
				if err := c.client.SendTransaction(context.Background(), signedTx); err != nil &&
					!strings.Contains(err.Error(), "already known") {
					logger.Error("Failed to rebroadcast tx %s: %v", sub.Hash, err)
				}
				continue
			}

			sub.Resolve(Outcome{
				Mined:  false,
				Reason: FailureTimeout,
				Err:    fmt.Errorf("transaction %s not mined within %s after %d retries", sub.Hash, c.submitTimeout, retries),
			})
			return
		}
	}
}

// isConfirmed 回执是否达到确认深度
func (c *Client) isConfirmed(receipt *types.Receipt) bool {
	latest, err := c.LatestBlock()
	if err != nil {
		logger.Error("Failed to get latest block: %v", err)
		return false
	}
	return latest >= receipt.BlockNumber.Uint64()+uint64(c.confirmations)
}

// transfersFromReceipt 从回执日志解析质押转移
func (c *Client) transfersFromReceipt(receipt *types.Receipt) []Transfer {
	var transfers []Transfer
	for _, log := range receipt.Logs {
		if log == nil {
			continue
		}
		if t, ok := c.ParseTransferLog(*log); ok {
			transfers = append(transfers, t)
		}
	}
	return transfers
}

// CheckTransaction 查询某笔交易的当前状态（用于重启后的孤儿回滚）
func (c *Client) CheckTransaction(ctx context.Context, txHash string) (mined bool, success bool, err error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil || receipt == nil {
		if err == ethereum.NotFound {
			return false, false, nil
		}
		return false, false, err
	}
	return true, receipt.Status == types.ReceiptStatusSuccessful, nil
}

// SuggestGasPrice 获取当前网络gas价格
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

// LatestBlock 获取最新区块号
func (c *Client) LatestBlock() (uint64, error) {
	header, err := c.client.HeaderByNumber(context.Background(), nil)
	if err != nil {
		return 0, err
	}
	return header.Number.Uint64(), nil
}

// GetLogs 获取指定区块范围内本合约的日志
func (c *Client) GetLogs(fromBlock, toBlock int64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(fromBlock),
		ToBlock:   big.NewInt(toBlock),
		Addresses: []common.Address{c.contractAddr},
	}

	return c.client.FilterLogs(context.Background(), query)
}

// classifySendError 将节点返回的广播错误归类
func classifySendError(err error) FailureReason {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return FailureInsufficientFunds
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return FailureTimeout
	default:
		return FailureRejected
	}
}
