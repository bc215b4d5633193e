package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/segmentio/encoding/json"

	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/errs"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/oauth"
)

// Signer is the subset of *oauth.Manager the adapter needs; each
// OAuth-signed HTTP attempt must mint a fresh nonce/timestamp, so retries
// happen here rather than via a generic retrying HTTP client.
type Signer interface {
	SignRequest(env config.Environment, method, rawURL string, params map[string]string) (string, error)
}

// ETradeAdapter is the live Broker implementation atop the OAuth-signed
// E*TRADE REST API. Response bodies are decoded with
// segmentio/encoding/json for hot-path quote/chain payloads.
type ETradeAdapter struct {
	cfg    *config.Config
	signer Signer
	env    config.Environment
	http   *http.Client
	log    *logger.Logger
}

// NewETradeAdapter builds an adapter bound to one environment.
func NewETradeAdapter(cfg *config.Config, signer Signer, env config.Environment) *ETradeAdapter {
	return &ETradeAdapter{
		cfg:    cfg,
		signer: signer,
		env:    env,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    logger.For("broker.etrade"),
	}
}

// doSigned issues a signed GET/POST with up to 3 attempts and exponential
// backoff (1s after the first attempt, 2s after the second), regenerating the OAuth signature on every attempt
// since the nonce/timestamp must be fresh each time.
func (a *ETradeAdapter) doSigned(ctx context.Context, method, rawURL string, params map[string]string, body io.Reader) ([]byte, error) {
	delay := time.Second
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		header, err := a.signer.SignRequest(a.env, method, rawURL, params)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", header)
		req.Header.Set("Accept", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			lastErr = errs.Newf(errs.BrokerTransient, "request failed: %v", err)
		} else {
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				return nil, errs.Newf(errs.TokenInactive, "broker returned 401: %s", string(data))
			case resp.StatusCode >= 500:
				lastErr = errs.Newf(errs.BrokerTransient, "broker %d", resp.StatusCode)
			case resp.StatusCode >= 400:
				return nil, errs.Newf(errs.BrokerPermanent, "broker %d: %s", resp.StatusCode, string(data))
			default:
				return data, nil
			}
		}
		if attempt < 2 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return nil, lastErr
}

func (a *ETradeAdapter) baseURL() string { return a.cfg.BaseURL(a.env) }

type accountsEnvelope struct {
	AccountListResponse struct {
		Accounts struct {
			Account []struct {
				AccountID    string `json:"accountId"`
				AccountIDKey string `json:"accountIdKey"`
				AccountStatus string `json:"accountStatus"`
				AccountType  string `json:"accountType"`
			} `json:"Account"`
		} `json:"Accounts"`
	} `json:"AccountListResponse"`
}

func (a *ETradeAdapter) ListAccounts(ctx context.Context) ([]Account, error) {
	raw, err := a.doSigned(ctx, http.MethodGet, a.baseURL()+"/v1/accounts/list.json", nil, nil)
	if err != nil {
		return nil, err
	}
	var env accountsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Newf(errs.InvalidRequest, "decode accounts: %v", err)
	}
	out := make([]Account, 0, len(env.AccountListResponse.Accounts.Account))
	for _, acc := range env.AccountListResponse.Accounts.Account {
		out = append(out, Account{
			AccountID:    acc.AccountID,
			AccountIDKey: acc.AccountIDKey,
			Status:       acc.AccountStatus,
			Type:         acc.AccountType,
		})
	}
	return out, nil
}

type balanceEnvelope struct {
	BalanceResponse struct {
		AccountValue float64 `json:"accountValue"`
		Computed     struct {
			CashAvailableForInvestment float64 `json:"cashAvailableForInvestment"`
			NetCash                    float64 `json:"netCash"`
			MarginBuyingPower          float64 `json:"marginBuyingPower"`
		} `json:"Computed"`
	} `json:"BalanceResponse"`
}

func (a *ETradeAdapter) GetBalance(ctx context.Context, accountIDKey string) (Balance, error) {
	rawURL := fmt.Sprintf("%s/v1/accounts/%s/balance.json", a.baseURL(), accountIDKey)
	params := map[string]string{"instType": "BROKERAGE", "realTimeNAV": "true"}
	raw, err := a.doSigned(ctx, http.MethodGet, rawURL, params, nil)
	if err != nil {
		return Balance{}, err
	}
	var env balanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Balance{}, errs.Newf(errs.InvalidRequest, "decode balance: %v", err)
	}
	return Balance{
		CashAvailableForInvestment: env.BalanceResponse.Computed.CashAvailableForInvestment,
		AccountValue:               env.BalanceResponse.AccountValue,
		BuyingPower:                env.BalanceResponse.Computed.MarginBuyingPower,
	}, nil
}

type quoteEnvelope struct {
	QuoteResponse struct {
		QuoteData []struct {
			Product struct {
				Symbol string `json:"symbol"`
			} `json:"Product"`
			All struct {
				LastTrade float64 `json:"lastTrade"`
				Bid       float64 `json:"bid"`
				Ask       float64 `json:"ask"`
				TotalVolume int64 `json:"totalVolume"`
				Open      float64 `json:"open"`
				High      float64 `json:"high"`
				Low       float64 `json:"low"`
			} `json:"All"`
		} `json:"QuoteData"`
	} `json:"QuoteResponse"`
}

func (a *ETradeAdapter) GetQuote(ctx context.Context, symbols []string) ([]Quote, error) {
	rawURL := fmt.Sprintf("%s/v1/market/quote/%s.json", a.baseURL(), url.PathEscape(joinSymbols(symbols)))
	raw, err := a.doSigned(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	var env quoteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Newf(errs.InvalidRequest, "decode quotes: %v", err)
	}
	now := time.Now()
	out := make([]Quote, 0, len(env.QuoteResponse.QuoteData))
	for _, q := range env.QuoteResponse.QuoteData {
		out = append(out, Quote{
			Symbol: q.Product.Symbol,
			Last:   q.All.LastTrade,
			Bid:    q.All.Bid,
			Ask:    q.All.Ask,
			Volume: q.All.TotalVolume,
			Open:   q.All.Open,
			High:   q.All.High,
			Low:    q.All.Low,
			AsOf:   now,
		})
	}
	return out, nil
}

func joinSymbols(symbols []string) string {
	out := ""
	for i, s := range symbols {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

type chainEnvelope struct {
	OptionChainResponse struct {
		OptionPair []struct {
			Call chainLeg `json:"Call"`
			Put  chainLeg `json:"Put"`
		} `json:"OptionPairs"`
	} `json:"OptionChainResponse"`
}

type chainLeg struct {
	StrikePrice  float64 `json:"strikePrice"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
	LastPrice    float64 `json:"lastPrice"`
	Volume       int64   `json:"volume"`
	OpenInterest int64   `json:"openInterest"`
	OptionGreeks struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		IV    float64 `json:"iv"`
	} `json:"OptionGreeks"`
}

func (l chainLeg) toContract(symbol, expiry string, kind model.OptionKind) model.OptionContract {
	return model.OptionContract{
		Symbol:       symbol,
		Strike:       l.StrikePrice,
		Expiry:       expiry,
		Kind:         kind,
		Bid:          l.Bid,
		Ask:          l.Ask,
		Last:         l.LastPrice,
		Volume:       l.Volume,
		OpenInterest: l.OpenInterest,
		Delta:        l.OptionGreeks.Delta,
		Gamma:        l.OptionGreeks.Gamma,
		Theta:        l.OptionGreeks.Theta,
		Vega:         l.OptionGreeks.Vega,
		IV:           l.OptionGreeks.IV,
		FetchedAt:    time.Now(),
	}
}

func (a *ETradeAdapter) GetOptionChain(ctx context.Context, symbol, expiry string, strikesAroundATM int, includeGreeks bool) ([]model.OptionContract, []model.OptionContract, error) {
	rawURL := fmt.Sprintf("%s/v1/market/optionchains.json", a.baseURL())
	params := map[string]string{
		"symbol":        symbol,
		"expiryDate":    expiry,
		"noOfStrikes":   strconv.Itoa(strikesAroundATM * 2),
		"includeWeekly": "true",
	}
	if includeGreeks {
		params["optionCategory"] = "ALL"
	}
	raw, err := a.doSigned(ctx, http.MethodGet, rawURL, params, nil)
	if err != nil {
		return nil, nil, err
	}
	var env chainEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, errs.Newf(errs.InvalidRequest, "decode chain: %v", err)
	}
	calls := make([]model.OptionContract, 0, len(env.OptionChainResponse.OptionPair))
	puts := make([]model.OptionContract, 0, len(env.OptionChainResponse.OptionPair))
	for _, pair := range env.OptionChainResponse.OptionPair {
		calls = append(calls, pair.Call.toContract(symbol, expiry, model.Call))
		puts = append(puts, pair.Put.toContract(symbol, expiry, model.Put))
	}
	return calls, puts, nil
}

func (a *ETradeAdapter) PreviewOrder(ctx context.Context, accountIDKey string, order Order) (PreviewResult, error) {
	payload, err := buildOrderPayload(order, "PREVIEW")
	if err != nil {
		return PreviewResult{}, err
	}
	rawURL := fmt.Sprintf("%s/v1/accounts/%s/orders/preview.json", a.baseURL(), accountIDKey)
	raw, err := a.doSigned(ctx, http.MethodPost, rawURL, nil, bytes.NewReader(payload))
	if err != nil {
		return PreviewResult{}, err
	}
	var env struct {
		PreviewOrderResponse struct {
			PreviewIds []struct {
				PreviewID int64 `json:"previewId"`
			} `json:"PreviewIds"`
		} `json:"PreviewOrderResponse"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return PreviewResult{}, errs.Newf(errs.InvalidRequest, "decode preview: %v", err)
	}
	if len(env.PreviewOrderResponse.PreviewIds) == 0 {
		return PreviewResult{}, errs.New(errs.InvalidRequest, "broker returned no preview id")
	}
	return PreviewResult{PreviewID: strconv.FormatInt(env.PreviewOrderResponse.PreviewIds[0].PreviewID, 10)}, nil
}

func (a *ETradeAdapter) PlaceOrder(ctx context.Context, accountIDKey string, order Order, previewID string) (PlaceResult, error) {
	payload, err := buildOrderPayload(order, "PLACE")
	if err != nil {
		return PlaceResult{}, err
	}
	rawURL := fmt.Sprintf("%s/v1/accounts/%s/orders/place.json?previewId=%s", a.baseURL(), accountIDKey, url.QueryEscape(previewID))
	raw, err := a.doSigned(ctx, http.MethodPost, rawURL, nil, bytes.NewReader(payload))
	if err != nil {
		return PlaceResult{}, err
	}
	var env struct {
		PlaceOrderResponse struct {
			OrderIds []struct {
				OrderID int64 `json:"orderId"`
			} `json:"OrderIds"`
			OrderType string `json:"orderType"`
		} `json:"PlaceOrderResponse"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return PlaceResult{}, errs.Newf(errs.InvalidRequest, "decode place: %v", err)
	}
	if len(env.PlaceOrderResponse.OrderIds) == 0 {
		return PlaceResult{}, errs.New(errs.InvalidRequest, "broker returned no order id")
	}
	return PlaceResult{
		OrderID: strconv.FormatInt(env.PlaceOrderResponse.OrderIds[0].OrderID, 10),
		Status:  "SUBMITTED",
	}, nil
}

func (a *ETradeAdapter) CancelOrder(ctx context.Context, accountIDKey, orderID string) error {
	rawURL := fmt.Sprintf("%s/v1/accounts/%s/orders/cancel.json", a.baseURL(), accountIDKey)
	body, _ := json.Marshal(map[string]any{"CancelOrderRequest": map[string]string{"orderId": orderID}})
	_, err := a.doSigned(ctx, http.MethodPut, rawURL, nil, bytes.NewReader(body))
	return err
}

func (a *ETradeAdapter) GetPositions(ctx context.Context, accountIDKey string) ([]PositionSnapshot, error) {
	rawURL := fmt.Sprintf("%s/v1/accounts/%s/portfolio.json", a.baseURL(), accountIDKey)
	raw, err := a.doSigned(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	var env struct {
		PortfolioResponse struct {
			AccountPortfolio []struct {
				Position []struct {
					Symbol       string  `json:"symbolDescription"`
					Quantity     float64 `json:"quantity"`
					PricePaid    float64 `json:"pricePaid"`
					MarketValue  float64 `json:"marketValue"`
				} `json:"Position"`
			} `json:"AccountPortfolio"`
		} `json:"PortfolioResponse"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Newf(errs.InvalidRequest, "decode portfolio: %v", err)
	}
	var out []PositionSnapshot
	for _, acct := range env.PortfolioResponse.AccountPortfolio {
		for _, p := range acct.Position {
			cur := p.PricePaid
			if p.Quantity != 0 {
				cur = p.MarketValue / p.Quantity
			}
			out = append(out, PositionSnapshot{
				Symbol:       p.Symbol,
				Quantity:     p.Quantity,
				AveragePrice: p.PricePaid,
				CurrentPrice: cur,
			})
		}
	}
	return out, nil
}

func buildOrderPayload(order Order, action string) ([]byte, error) {
	if len(order.Legs) == 0 {
		return nil, errs.New(errs.InvalidRequest, "order has no legs")
	}
	type orderDetail struct {
		AllOrNone    bool   `json:"allOrNone"`
		PriceType    string `json:"priceType"`
		OrderTerm    string `json:"orderTerm"`
		MarketSession string `json:"marketSession"`
		LimitPrice   string `json:"limitPrice,omitempty"`
	}
	term := order.Term
	if term == "" {
		term = "GOOD_FOR_DAY"
	}
	detail := orderDetail{
		PriceType:     string(order.PriceType),
		OrderTerm:     term,
		MarketSession: "REGULAR",
	}
	if order.PriceType == Limit {
		detail.LimitPrice = strconv.FormatFloat(order.LimitPx, 'f', 2, 64)
	}
	return json.Marshal(map[string]any{
		"PreviewOrderRequest": map[string]any{
			"orderType": string(order.Kind),
			"clientOrderId": fmt.Sprintf("eo-%d", time.Now().UnixNano()),
			"action":    action,
			"Order":     []orderDetail{detail},
			"legs":      order.Legs,
		},
	})
}
