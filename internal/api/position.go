package api

import (
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"zapkit/internal/amm"
	"zapkit/internal/model"
)

// PositionHandler values an account's pool tokens.
type PositionHandler struct {
	BaseHandler
	services *Services
}

// NewPositionHandler builds a position handler.
func NewPositionHandler(logger *zap.Logger, services *Services) *PositionHandler {
	return &PositionHandler{BaseHandler: newBase(logger), services: services}
}

// PositionRequest is the query of GET /position.
type PositionRequest struct {
	ChainID string `query:"chain_id" json:"chain_id"`
	Pool    string `query:"pool" json:"pool"`
	Account string `query:"account" json:"account"`
}

// PositionResponse is the body of GET /position. Values that cannot be
// computed render as "-".
type PositionResponse struct {
	Pool       model.PoolMeta `json:"pool"`
	Account    string         `json:"account"`
	Wallet     string         `json:"wallet"`
	Staked     string         `json:"staked"`
	PoolTokens string         `json:"pool_tokens"`
	Share      string         `json:"share"`
	Pooled0    string         `json:"pooled0"`
	Pooled1    string         `json:"pooled1"`
	Empty      bool           `json:"empty"`
}

func (h *PositionHandler) Handle() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req PositionRequest
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
		account, err := parseAddress("account", req.Account)
		if err != nil {
			return err
		}

		pos, err := svc.Position(c.Context(), pool, account)
		if err != nil {
			h.logger.Error("position failed", zap.String("pool", req.Pool), zap.Error(err))
			return ErrPositionFailedInternal
		}
		return c.JSON(positionResponse(pos, account.Hex()))
	}
}

func positionResponse(pos amm.Position, account string) PositionResponse {
	meta := model.MetaOf(pos.Pair)
	meta.TotalSupply = pos.TotalSupply.String()
	resp := PositionResponse{
		Pool:       meta,
		Account:    account,
		Wallet:     pos.Wallet.Exact(),
		Staked:     pos.Staked.Exact(),
		PoolTokens: pos.PoolTokens.Exact(),
		Share:      pos.ShareText(),
		Pooled0:    "-",
		Pooled1:    "-",
		Empty:      pos.Empty(),
	}
	if pos.PooledKnown {
		resp.Pooled0 = pos.Pooled0.Exact()
		resp.Pooled1 = pos.Pooled1.Exact()
	}
	return resp
}
