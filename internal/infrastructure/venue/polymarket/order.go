package polymarket

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"

	"github.com/betbot/autoexec/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdc 与 outcome token 都是 6 位精度
const tokenDecimals = 6

// exchangeOrder CTF Exchange 签名订单（交易所 JSON 形态）
type exchangeOrder struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

// TokenKey market/outcome -> TokenIDs 的键
func TokenKey(market, outcome string) string {
	return market + "/" + strings.ToLower(outcome)
}

// orderAmounts 买单：maker 付 USDC、taker 得 token；卖单相反。份额保留 2 位、金额保留 4 位。
func orderAmounts(side domain.OrderSide, qty, price float64) (maker, taker *big.Int, err error) {
	shares := decimal.NewFromFloat(qty).Truncate(2)
	px := decimal.NewFromFloat(price).Round(4)
	if !shares.IsPositive() || !px.IsPositive() || px.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, nil, errors.Errorf("polymarket: invalid amounts qty=%v price=%v", qty, price)
	}
	notional := shares.Mul(px).Truncate(4)
	if !notional.IsPositive() {
		return nil, nil, errors.Errorf("polymarket: notional rounds to zero qty=%v price=%v", qty, price)
	}
	sharesRaw := shares.Shift(tokenDecimals).BigInt()
	notionalRaw := notional.Shift(tokenDecimals).BigInt()
	if side == domain.OrderSideSell {
		return sharesRaw, notionalRaw, nil
	}
	return notionalRaw, sharesRaw, nil
}

// buildExchangeOrder 用 go-order-utils 生成 EIP-712 签名订单
func (v *Venue) buildExchangeOrder(order *domain.Order, tokenID string) (*exchangeOrder, error) {
	if !order.HasPrice() {
		return nil, errors.Errorf("polymarket: order %s needs a price to build an exchange order", order.OrderID)
	}
	maker, taker, err := orderAmounts(order.Side, order.Quantity, order.Price)
	if err != nil {
		return nil, err
	}
	side, sideName := gomodel.BUY, "BUY"
	if order.Side == domain.OrderSideSell {
		side, sideName = gomodel.SELL, "SELL"
	}
	contract := gomodel.CTFExchange
	if v.cfg.NegRisk {
		contract = gomodel.NegRiskCTFExchange
	}
	addr := v.signer.address.Hex()
	ob := builder.NewExchangeOrderBuilderImpl(big.NewInt(v.signer.chainID), nil)
	signed, err := ob.BuildSignedOrder(v.signer.key, &gomodel.OrderData{
		Maker:         addr,
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        addr,
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodel.EOA,
	}, contract)
	if err != nil {
		return nil, errors.Wrapf(err, "polymarket: sign order %s", order.OrderID)
	}
	return &exchangeOrder{
		Salt:          json.Number(signed.Order.Salt.String()),
		Maker:         signed.Order.Maker.Hex(),
		Signer:        signed.Order.Signer.Hex(),
		Taker:         signed.Order.Taker.Hex(),
		TokenID:       tokenID,
		MakerAmount:   signed.Order.MakerAmount.String(),
		TakerAmount:   signed.Order.TakerAmount.String(),
		Expiration:    signed.Order.Expiration.String(),
		Nonce:         signed.Order.Nonce.String(),
		FeeRateBps:    signed.Order.FeeRateBps.String(),
		Side:          sideName,
		SignatureType: int(signed.Order.SignatureType.Int64()),
		Signature:     "0x" + hex.EncodeToString(signed.Signature),
	}, nil
}
