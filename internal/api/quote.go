package api

import (
	"errors"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/model"
)

// Services maps chain IDs to the service reading that chain.
type Services struct {
	byID         map[uint64]*Service
	defaultChain uint64
}

// NewServices indexes services. The first one is the default chain.
func NewServices(services ...*Service) *Services {
	out := &Services{byID: make(map[uint64]*Service, len(services))}
	for i, svc := range services {
		id := svc.Chain().ID
		if i == 0 {
			out.defaultChain = id
		}
		out.byID[id] = svc
	}
	return out
}

func (s *Services) lookup(raw string) (*Service, error) {
	id := s.defaultChain
	if raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, ErrInvalidQueryParameters
		}
		id = parsed
	}
	svc, ok := s.byID[id]
	if !ok {
		return nil, NewUnknownChain(id)
	}
	return svc, nil
}

// QuoteHandler prices a zap.
type QuoteHandler struct {
	BaseHandler
	services *Services
}

// NewQuoteHandler builds a quote handler.
func NewQuoteHandler(logger *zap.Logger, services *Services) *QuoteHandler {
	return &QuoteHandler{BaseHandler: newBase(logger), services: services}
}

// QuoteRequest is the query of GET /quote.
type QuoteRequest struct {
	ChainID  string `query:"chain_id" json:"chain_id"`
	Pool     string `query:"pool" json:"pool"`
	Currency string `query:"currency" json:"currency"`
	Amount   string `query:"amount" json:"amount"`
	Slippage string `query:"slippage_bps" json:"slippage_bps"`
}

// QuoteResponse is the body of GET /quote.
type QuoteResponse struct {
	Pool         model.PoolMeta `json:"pool"`
	Input        string         `json:"input"`
	InputSymbol  string         `json:"input_symbol"`
	Route        string         `json:"route,omitempty"`
	Target       string         `json:"swap_target"`
	SwapIn       string         `json:"swap_in"`
	Amount0      string         `json:"amount0"`
	Amount1      string         `json:"amount1"`
	Liquidity    string         `json:"liquidity"`
	LiquidityRaw string         `json:"liquidity_raw"`
	MinimumOut   string         `json:"minimum_out_raw"`
	PoolShare    string         `json:"pool_share"`
	PriceImpact  string         `json:"price_impact"`
	Severity     string         `json:"severity"`
	Blocking     bool           `json:"blocking"`
	Slippage     string         `json:"slippage"`
}

func (h *QuoteHandler) Handle() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req QuoteRequest
		if err := c.Bind().Query(&req); err != nil {
			h.logger.Debug("failed to bind query parameters", zap.Error(err))
			return ErrInvalidQueryParameters
		}
		svc, err := h.services.lookup(req.ChainID)
		if err != nil {
			return err
		}
		pool, err := parseAddress("pool", req.Pool)
		if err != nil {
			return err
		}
		if req.Currency == "" {
			return ErrCurrencyRequired
		}
		if req.Amount == "" {
			return ErrAmountRequired
		}
		var slippage amm.Slippage
		if req.Slippage != "" {
			bps, err := strconv.ParseUint(req.Slippage, 10, 32)
			if err != nil {
				return NewInvalidSlippage(err)
			}
			slippage = amm.Slippage(bps)
			if err := slippage.Validate(); err != nil {
				return NewInvalidSlippage(err)
			}
		}

		quote, supply, err := svc.Quote(c.Context(), pool, req.Currency, req.Amount, slippage)
		if err != nil {
			return h.handleServiceError(err)
		}
		return c.JSON(quoteResponse(quote, supply))
	}
}

func quoteResponse(q *amm.ZapQuote, supply *big.Int) QuoteResponse {
	meta := model.MetaOf(q.Pair)
	meta.TotalSupply = supply.String()
	resp := QuoteResponse{
		Pool:         meta,
		Input:        q.Input.Exact(),
		InputSymbol:  q.Input.Token.Display(),
		Target:       q.Target.String(),
		SwapIn:       q.SwapIn.String(),
		Amount0:      q.Amount0.Exact(),
		Amount1:      q.Amount1.Exact(),
		Liquidity:    q.Liquidity.Exact(),
		LiquidityRaw: q.Liquidity.Raw.String(),
		MinimumOut:   q.MinimumOut.String(),
		PoolShare:    q.PoolShare.Display(),
		PriceImpact:  q.PriceImpact.String(),
		Severity:     q.Severity.String(),
		Blocking:     q.Severity.Blocking(),
		Slippage:     q.Slippage.String(),
	}
	if q.Trade != nil {
		resp.Route = q.Trade.Route.Symbols()
	}
	return resp
}

func (h *QuoteHandler) handleServiceError(err error) error {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return err
	case errors.Is(err, amm.ErrEmptyReserves):
		return ErrEmptyReservesBadRequest
	case errors.Is(err, amm.ErrNoRoute):
		return ErrNoRouteBadRequest
	case errors.Is(err, ErrUnknownCurrency):
		return NewInvalidAddress("currency")
	case errors.Is(err, amm.ErrInsufficientInput),
		errors.Is(err, model.ErrEmptyAmount),
		errors.Is(err, model.ErrAmountFormat),
		errors.Is(err, model.ErrAmountPrecision),
		errors.Is(err, model.ErrNegativeAmount):
		return NewInvalidAmount(err)
	default:
		h.logger.Error("quote failed", zap.Error(err))
		return ErrQuoteFailedInternal
	}
}

func parseAddress(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, NewAddressRequired(field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, NewInvalidAddress(field)
	}
	return common.HexToAddress(value), nil
}
