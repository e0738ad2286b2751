package binance

// Kline represents a candlestick
type Kline struct {
	OpenTime         int64   `json:"openTime"`
	Open             float64 `json:"open,string"`
	High             float64 `json:"high,string"`
	Low              float64 `json:"low,string"`
	Close            float64 `json:"close,string"`
	Volume           float64 `json:"volume,string"`
	CloseTime        int64   `json:"closeTime"`
	QuoteAssetVolume float64 `json:"quoteAssetVolume,string"`
	NumberOfTrades   int     `json:"numberOfTrades"`
}

// Ticker24hr represents 24hr ticker price change statistics
type Ticker24hr struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
	OpenTime           int64   `json:"openTime"`
	CloseTime          int64   `json:"closeTime"`
	Count              int64   `json:"count"`
}

// Fill represents a single fill of an executed order
type Fill struct {
	Price           float64 `json:"price,string"`
	Qty             float64 `json:"qty,string"`
	Commission      float64 `json:"commission,string"`
	CommissionAsset string  `json:"commissionAsset"`
}

// OrderResponse represents a response from placing an order
type OrderResponse struct {
	Symbol              string  `json:"symbol"`
	OrderId             int64   `json:"orderId"`
	ClientOrderId       string  `json:"clientOrderId"`
	TransactTime        int64   `json:"transactTime"`
	Price               float64 `json:"price,string"`
	OrigQty             float64 `json:"origQty,string"`
	ExecutedQty         float64 `json:"executedQty,string"`
	CummulativeQuoteQty float64 `json:"cummulativeQuoteQty,string"`
	Status              string  `json:"status"`
	Type                string  `json:"type"`
	Side                string  `json:"side"`
	Fills               []Fill  `json:"fills"`
}

// AvgFillPrice returns the quantity-weighted average price across fills.
// Falls back to the cumulative quote / executed quantity when fills are
// missing from the response.
func (o *OrderResponse) AvgFillPrice() float64 {
	if len(o.Fills) > 0 {
		var qty, quote float64
		for _, f := range o.Fills {
			qty += f.Qty
			quote += f.Price * f.Qty
		}
		if qty > 0 {
			return quote / qty
		}
	}
	if o.ExecutedQty > 0 {
		return o.CummulativeQuoteQty / o.ExecutedQty
	}
	return 0
}

// OpenOrder represents a resting order on the book
type OpenOrder struct {
	Symbol        string  `json:"symbol"`
	OrderId       int64   `json:"orderId"`
	ClientOrderId string  `json:"clientOrderId"`
	Price         float64 `json:"price,string"`
	OrigQty       float64 `json:"origQty,string"`
	Type          string  `json:"type"`
	Side          string  `json:"side"`
	Status        string  `json:"status"`
	Time          int64   `json:"time"`
}

// AccountInfo represents spot account information
type AccountInfo struct {
	CanTrade    bool           `json:"canTrade"`
	UpdateTime  int64          `json:"updateTime"`
	AccountType string         `json:"accountType"`
	Balances    []AssetBalance `json:"balances"`
}

// AssetBalance represents a single asset balance
type AssetBalance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free,string"`
	Locked float64 `json:"locked,string"`
}

// SymbolFilter represents a single exchange filter for a symbol
type SymbolFilter struct {
	FilterType string  `json:"filterType"`
	StepSize   float64 `json:"stepSize,string"`
	MinQty     float64 `json:"minQty,string"`
	MaxQty     float64 `json:"maxQty,string"`
}

// SymbolInfo represents basic symbol information
type SymbolInfo struct {
	Symbol               string         `json:"symbol"`
	Status               string         `json:"status"`
	BaseAsset            string         `json:"baseAsset"`
	QuoteAsset           string         `json:"quoteAsset"`
	IsSpotTradingAllowed bool           `json:"isSpotTradingAllowed"`
	Filters              []SymbolFilter `json:"filters"`
}

// ExchangeInfo represents exchange information response
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// LotSize holds the LOT_SIZE constraints for a symbol
type LotSize struct {
	StepSize float64
	MinQty   float64
}

// Round snaps a quantity down to a valid step multiple. Quantities below
// MinQty round to zero rather than up, so a caller never sells more than
// the account holds.
func (ls LotSize) Round(qty float64) float64 {
	if ls.StepSize <= 0 {
		return qty
	}
	steps := int64(qty / ls.StepSize)
	rounded := float64(steps) * ls.StepSize
	if rounded < ls.MinQty {
		return 0
	}
	return rounded
}
