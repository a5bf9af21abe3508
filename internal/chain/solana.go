package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
)

// Config 链上RPC配置
type Config struct {
	RPCURL         string        `yaml:"rpc_url" json:"rpc_url"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	SendMaxRetries uint          `yaml:"send_max_retries" json:"send_max_retries"`
}

// Client Solana RPC封装
type Client struct {
	cfg Config
	rpc *rpc.Client
}

func NewClient(cfg Config) *Client {
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.SendMaxRetries == 0 {
		cfg.SendMaxRetries = 3
	}
	return &Client{
		cfg: cfg,
		rpc: rpc.New(cfg.RPCURL),
	}
}

// Balance 查询SOL余额(lamports)
func (c *Client) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	res, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	return res.Value, nil
}

// TokenBalance 查询代币余额(最小单位)，无代币账户时返回0
func (c *Client) TokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, error) {
	accounts, err := c.rpc.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{
			Mint: &mint,
		},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
		},
	)
	if err != nil {
		return 0, errors.Wrap(err, "get token accounts")
	}

	var total uint64
	for _, acc := range accounts.Value {
		data := acc.Account.Data.GetBinary()
		// SPL token账户布局：amount位于第64..72字节
		if data == nil || len(data) < 72 {
			continue
		}
		total += binary.LittleEndian.Uint64(data[64:72])
	}
	return total, nil
}

// KeypairFromSeed 从hex编码的32字节ed25519种子派生私钥
func KeypairFromSeed(seedHex string) (solana.PrivateKey, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return solana.PrivateKey(priv), nil
}

// SignSerialized 反序列化base64交易并用私钥签名
func (c *Client) SignSerialized(txBase64 string, signer solana.PrivateKey) (*solana.Transaction, error) {
	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, errors.Wrap(err, "decode transaction")
	}

	tx, err := solana.TransactionFromBytes(txBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse transaction")
	}

	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return tx, nil
}

// Submit 提交已签名交易，跳过预检
func (c *Client) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := c.cfg.SendMaxRetries
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		MaxRetries:          &maxRetries,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "send transaction")
	}
	return sig, nil
}

// Confirm 轮询签名状态直到上链或超时
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "confirm %s", sig.String())
		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue
			}
			if len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}

			status := statuses.Value[0]
			if status.Err != nil {
				return errors.Errorf("transaction %s failed on chain: %v", sig.String(), status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusProcessed,
				rpc.ConfirmationStatusConfirmed,
				rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}
