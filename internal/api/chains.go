package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"zapkit/internal/chains"
	"zapkit/internal/model"
)

// ChainsHandler lists the chains the server offers.
type ChainsHandler struct {
	BaseHandler
	registry  *chains.Registry
	available []uint64
}

// NewChainsHandler builds a handler over the available subset of registry.
func NewChainsHandler(logger *zap.Logger, registry *chains.Registry, available []uint64) *ChainsHandler {
	return &ChainsHandler{
		BaseHandler: newBase(logger),
		registry:    registry,
		available:   available,
	}
}

// ChainsRequest excludes the chain picked on the other side of a pairing.
type ChainsRequest struct {
	Exclude string `query:"exclude" json:"exclude"`
}

func (h *ChainsHandler) Handle() fiber.Handler {
	return func(c fiber.Ctx) error {
		var req ChainsRequest
		if err := c.Bind().Query(&req); err != nil {
			h.logger.Debug("failed to bind query parameters", zap.Error(err))
			return ErrInvalidQueryParameters
		}

		selector := chains.NewSelector(h.registry, h.available, nil)
		if req.Exclude != "" {
			id, err := strconv.ParseUint(req.Exclude, 10, 64)
			if err != nil {
				return ErrInvalidQueryParameters
			}
			if other, err := h.registry.Get(id); err == nil {
				selector.SetOther(&other)
			}
		}

		options := selector.Options()
		if options == nil {
			options = []model.Chain{}
		}
		return c.JSON(options)
	}
}
