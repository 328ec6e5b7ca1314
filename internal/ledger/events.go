package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventName 返回日志对应的事件名，未知事件返回空串
func (c *Client) EventName(log types.Log) string {
	if len(log.Topics) == 0 {
		return ""
	}
	sig := log.Topics[0].Hex()
	for name, event := range c.contractABI.Events {
		if event.ID.Hex() == sig {
			return name
		}
	}
	return ""
}

// ParseTransferLog 解析 PledgeTransferred 事件
func (c *Client) ParseTransferLog(log types.Log) (Transfer, bool) {
	if c.EventName(log) != "PledgeTransferred" || len(log.Topics) < 4 {
		return Transfer{}, false
	}

	amount := int64(0)
	if len(log.Data) > 0 {
		amount = new(big.Int).SetBytes(log.Data).Int64()
	}

	return Transfer{
		PledgeId:    new(big.Int).SetBytes(log.Topics[1].Bytes()).Int64(),
		FromAdminId: new(big.Int).SetBytes(log.Topics[2].Bytes()).Int64(),
		ToAdminId:   new(big.Int).SetBytes(log.Topics[3].Bytes()).Int64(),
		Amount:      amount,
		TxHash:      log.TxHash.Hex(),
		BlockNum:    int64(log.BlockNumber),
		LogIndex:    int64(log.Index),
	}, true
}

// ParseWithdrawnLog 解析 PledgeWithdrawn 事件
func (c *Client) ParseWithdrawnLog(log types.Log) (Withdrawn, bool) {
	if c.EventName(log) != "PledgeWithdrawn" || len(log.Topics) < 3 {
		return Withdrawn{}, false
	}

	amount := int64(0)
	if len(log.Data) > 0 {
		amount = new(big.Int).SetBytes(log.Data).Int64()
	}

	return Withdrawn{
		PledgeId:  new(big.Int).SetBytes(log.Topics[1].Bytes()).Int64(),
		Recipient: common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		Amount:    amount,
		TxHash:    log.TxHash.Hex(),
		BlockNum:  int64(log.BlockNumber),
		LogIndex:  int64(log.Index),
	}, true
}

// ParseProjectAddedLog 解析 ProjectAdded 事件
func (c *Client) ParseProjectAddedLog(log types.Log) (ProjectAdded, bool) {
	if c.EventName(log) != "ProjectAdded" || len(log.Topics) < 3 {
		return ProjectAdded{}, false
	}

	return ProjectAdded{
		AdminId:  new(big.Int).SetBytes(log.Topics[1].Bytes()).Int64(),
		Addr:     common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		TxHash:   log.TxHash.Hex(),
		BlockNum: int64(log.BlockNumber),
		LogIndex: int64(log.Index),
	}, true
}
