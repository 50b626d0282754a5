package market

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/domain"
)

// ErrNormalization is returned for payloads that cannot become a Tick.
// Callers drop the message and keep reading.
var ErrNormalization = errors.New("tick normalization failed")

// FrameKind is the transport frame type a payload arrived in
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// tickerMessage is the JSON shape of a feed ticker message
type tickerMessage struct {
	Type             string           `json:"type"`
	Code             string           `json:"code"`
	TradePrice       *decimal.Decimal `json:"trade_price"`
	HighPrice        *decimal.Decimal `json:"high_price"`
	LowPrice         *decimal.Decimal `json:"low_price"`
	AccTradePrice24h *decimal.Decimal `json:"acc_trade_price_24h"`
	Change           string           `json:"change"`
	SignedChangeRate *float64         `json:"signed_change_rate"`
}

// packedTickerMessage is the MessagePack shape of the same message
type packedTickerMessage struct {
	Type             string   `msgpack:"type"`
	Code             string   `msgpack:"code"`
	TradePrice       *float64 `msgpack:"trade_price"`
	HighPrice        *float64 `msgpack:"high_price"`
	LowPrice         *float64 `msgpack:"low_price"`
	AccTradePrice24h *float64 `msgpack:"acc_trade_price_24h"`
	Change           string   `msgpack:"change"`
	SignedChangeRate *float64 `msgpack:"signed_change_rate"`
}

// Normalize parses a raw feed payload received now
func Normalize(raw []byte) (domain.Tick, error) {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt parses a raw payload, detecting whether it is JSON or MessagePack
func NormalizeAt(raw []byte, receivedAt time.Time) (domain.Tick, error) {
	if looksLikeJSON(raw) {
		return NormalizeFrame(FrameText, raw, receivedAt)
	}
	return NormalizeFrame(FrameBinary, raw, receivedAt)
}

// NormalizeFrame parses a payload delivered in the given frame kind.
// Text frames must hold JSON. Binary frames hold either UTF-8 JSON or a MessagePack map.
func NormalizeFrame(kind FrameKind, raw []byte, receivedAt time.Time) (domain.Tick, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return domain.Tick{}, fmt.Errorf("%w: empty payload", ErrNormalization)
	}

	var msg tickerMessage
	switch {
	case kind == FrameText || looksLikeJSON(raw):
		body := bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(body) {
			return domain.Tick{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrNormalization)
		}
		if err := json.Unmarshal(body, &msg); err != nil {
			return domain.Tick{}, fmt.Errorf("%w: invalid JSON: %v", ErrNormalization, err)
		}
	default:
		var packed packedTickerMessage
		if err := msgpack.Unmarshal(raw, &packed); err != nil {
			return domain.Tick{}, fmt.Errorf("%w: invalid binary payload: %v", ErrNormalization, err)
		}
		msg = packed.unpack()
	}

	return msg.toTick(receivedAt)
}

// looksLikeJSON reports whether the first significant byte opens a JSON object
func looksLikeJSON(raw []byte) bool {
	body := bytes.TrimLeft(bytes.TrimPrefix(raw, utf8BOM), " \t\r\n")
	return len(body) > 0 && body[0] == '{'
}

// SymbolFromCode maps a compound market code like "KRW-BTC" to "BTC"
func SymbolFromCode(code string) domain.Symbol {
	if i := strings.LastIndex(code, "-"); i >= 0 {
		code = code[i+1:]
	}
	return domain.NormalizeSymbol(code)
}

// CodeForSymbol builds the compound market code for a symbol
func CodeForSymbol(prefix string, symbol domain.Symbol) string {
	if prefix == "" {
		return symbol.String()
	}
	return prefix + "-" + symbol.String()
}

func (m tickerMessage) toTick(receivedAt time.Time) (domain.Tick, error) {
	if m.Type != "" && m.Type != "ticker" {
		return domain.Tick{}, fmt.Errorf("%w: unsupported message type %q", ErrNormalization, m.Type)
	}
	if strings.TrimSpace(m.Code) == "" {
		return domain.Tick{}, fmt.Errorf("%w: missing code", ErrNormalization)
	}
	if m.TradePrice == nil {
		return domain.Tick{}, fmt.Errorf("%w: missing trade_price for %s", ErrNormalization, m.Code)
	}
	if m.TradePrice.IsNegative() {
		return domain.Tick{}, fmt.Errorf("%w: negative trade_price %s for %s", ErrNormalization, m.TradePrice, m.Code)
	}

	symbol := SymbolFromCode(m.Code)
	if symbol == "" {
		return domain.Tick{}, fmt.Errorf("%w: empty symbol in code %q", ErrNormalization, m.Code)
	}

	tick := domain.Tick{
		Symbol:           symbol,
		TradePrice:       *m.TradePrice,
		HighPrice:        orZero(m.HighPrice),
		LowPrice:         orZero(m.LowPrice),
		AccTradePrice24h: orZero(m.AccTradePrice24h),
		Change:           domain.ParseChangeSign(m.Change),
		ReceivedAt:       receivedAt,
	}
	if m.SignedChangeRate != nil {
		tick.SignedChangeRate = *m.SignedChangeRate
	}
	return tick, nil
}

func (p packedTickerMessage) unpack() tickerMessage {
	return tickerMessage{
		Type:             p.Type,
		Code:             p.Code,
		TradePrice:       fromFloat(p.TradePrice),
		HighPrice:        fromFloat(p.HighPrice),
		LowPrice:         fromFloat(p.LowPrice),
		AccTradePrice24h: fromFloat(p.AccTradePrice24h),
		Change:           p.Change,
		SignedChangeRate: p.SignedChangeRate,
	}
}

func fromFloat(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
