package polymarket

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/pkg/errors"
)

const (
	clobDomainName = "ClobAuthDomain"
	clobVersion    = "1"
	clobAuthMsg    = "This message attests that I control the given wallet"

	DefaultChainID        = 137 // Polygon
	DefaultDerivationPath = "m/44'/60'/0'/0/0"
)

// Credentials 交易所认证信息。
//
// 只有 APIKey 时走中继模式（只带 POLY_API_KEY 头）；
// 配置了私钥或助记词时对每个请求做 L2 HMAC 签名，缺少 Secret 则在 Connect 时用 L1 签名派生。
type Credentials struct {
	APIKey         string
	Secret         string
	Passphrase     string
	PrivateKey     string // hex，可带 0x
	Mnemonic       string
	DerivationPath string
	ChainID        int64
}

type apiCreds struct {
	Key        string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

type signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// newSigner 私钥优先，其次助记词；都没有返回 nil
func newSigner(c Credentials) (*signer, error) {
	var key *ecdsa.PrivateKey
	switch {
	case strings.TrimSpace(c.PrivateKey) != "":
		k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(c.PrivateKey), "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "polymarket: invalid private key")
		}
		key = k
	case strings.TrimSpace(c.Mnemonic) != "":
		k, err := keyFromMnemonic(c.Mnemonic, c.DerivationPath)
		if err != nil {
			return nil, err
		}
		key = k
	default:
		return nil, nil
	}
	chainID := c.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}
	return &signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey), chainID: chainID}, nil
}

func keyFromMnemonic(mnemonic, derivationPath string) (*ecdsa.PrivateKey, error) {
	if strings.TrimSpace(derivationPath) == "" {
		derivationPath = DefaultDerivationPath
	}
	w, err := hdwallet.NewFromMnemonic(strings.TrimSpace(mnemonic))
	if err != nil {
		return nil, errors.Wrap(err, "polymarket: invalid mnemonic")
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, errors.Wrap(err, "polymarket: invalid derivation path")
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "polymarket: derive account")
	}
	return w.PrivateKey(acct)
}

// clobAuthHash EIP-712 ClobAuth 摘要
func (s *signer) clobAuthHash(timestamp, nonce int64) ([]byte, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    clobDomainName,
			Version: clobVersion,
			ChainId: math.NewHexOrDecimal256(s.chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   s.address.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     big.NewInt(nonce),
			"message":   clobAuthMsg,
		},
	}
	domainSep, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	msgHash, err := typed.HashStruct(typed.PrimaryType, typed.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	raw := append([]byte("\x19\x01"), domainSep...)
	raw = append(raw, msgHash...)
	return crypto.Keccak256(raw), nil
}

// authSignature L1 签名，0x 前缀 hex
func (s *signer) authSignature(timestamp, nonce int64) (string, error) {
	hash, err := s.clobAuthHash(timestamp, nonce)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

func (s *signer) l1Headers(timestamp, nonce int64) (map[string]string, error) {
	sig, err := s.authSignature(timestamp, nonce)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"POLY_NONCE":     strconv.FormatInt(nonce, 10),
	}, nil
}

func (s *signer) l2Headers(creds apiCreds, timestamp int64, method, path, body string) (map[string]string, error) {
	sig, err := hmacSignature(creds.Secret, timestamp, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_ADDRESS":    s.address.Hex(),
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  strconv.FormatInt(timestamp, 10),
		"POLY_API_KEY":    creds.Key,
		"POLY_PASSPHRASE": creds.Passphrase,
	}, nil
}

// hmacSignature base64url(HMAC-SHA256(secret, ts+method+path+body))，secret 为 base64url
func hmacSignature(secret string, timestamp int64, method, path, body string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		// 兼容标准 base64 的 secret
		if key, err = base64.StdEncoding.DecodeString(secret); err != nil {
			return "", errors.Wrap(err, "polymarket: decode api secret")
		}
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10) + method + path + body))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// deriveAPICreds 用 L1 签名向交易所派生 L2 API 凭证
func (v *Venue) deriveAPICreds(ctx context.Context) (apiCreds, error) {
	headers, err := v.signer.l1Headers(v.now().Unix(), 0)
	if err != nil {
		return apiCreds{}, errors.Wrap(err, "polymarket: l1 headers")
	}
	if err := v.limiter.Wait(ctx); err != nil {
		return apiCreds{}, errors.Wrap(err, "polymarket: rate limiter")
	}
	var out apiCreds
	resp, err := v.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&out).
		Get("/auth/derive-api-key")
	if err != nil {
		return apiCreds{}, errors.Wrap(err, "polymarket: derive api key")
	}
	if !resp.IsSuccess() {
		return apiCreds{}, errors.Errorf("polymarket: derive api key: http %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Key == "" || out.Secret == "" {
		return apiCreds{}, errors.New("polymarket: derive api key: empty credentials")
	}
	return out, nil
}
