package ledger

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrSignerLocked 签名器未解锁
var ErrSignerLocked = errors.New("signer is locked")

// Signer 签名能力。引擎不持久化任何密钥材料，只通过该接口授权链上提交。
type Signer interface {
	// Address 签名账户地址
	Address() common.Address
	// Sign 对交易签名；拒绝签名返回错误
	Sign(tx *types.Transaction) (*types.Transaction, error)
	// Unlock 解锁签名器
	Unlock(password string) error
}

// keyedSigner 基于配置私钥的默认签名器
type keyedSigner struct {
	privateKey *ecdsa.PrivateKey
	chainId    *big.Int
	locked     bool
}

// NewKeyedSigner 从十六进制私钥创建签名器
func NewKeyedSigner(hexKey string, chainId int64) (Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &keyedSigner{
		privateKey: privateKey,
		chainId:    big.NewInt(chainId),
	}, nil
}

func (s *keyedSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

func (s *keyedSigner) Sign(tx *types.Transaction) (*types.Transaction, error) {
	if s.locked {
		return nil, ErrSignerLocked
	}
	return types.SignTx(tx, types.LatestSignerForChainID(s.chainId), s.privateKey)
}

func (s *keyedSigner) Unlock(password string) error {
	// 配置私钥签名器没有密码，解锁恒成功
	s.locked = false
	return nil
}
