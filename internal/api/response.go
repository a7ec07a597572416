package api

import (
	"context"
	"math"
	"net/http"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/gin-gonic/gin"
)

type response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{
		Success: true,
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func fail(c *gin.Context, err error, data any) {
	code := statusOf(err)
	c.JSON(code, response{
		Code:    code,
		Message: http.StatusText(code),
		Data:    data,
		Error:   err.Error(),
	})
}

// statusOf maps the order error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, exception.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, exception.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, exception.ErrCorrelation):
		return http.StatusConflict
	case errors.Is(err, exception.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type orderDTO struct {
	OrderID        string    `json:"order_id"`
	ClientOrderID  string    `json:"client_order_id"`
	Status         string    `json:"status"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Price          *float64  `json:"price"`
	AveragePrice   *float64  `json:"average_price"`
	Fee            float64   `json:"fee"`
	FeeAsset       string    `json:"fee_asset"`
	Volume         float64   `json:"volume"`
	RealizedVolume float64   `json:"realized_volume"`
	UpdateTime     time.Time `json:"update_time"`
}

func newOrderDTO(o adapter.Order) orderDTO {
	dto := orderDTO{
		OrderID:        o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		Status:         o.Status.String(),
		Symbol:         o.Symbol,
		Side:           o.Side().String(),
		Fee:            o.Fee,
		FeeAsset:       o.FeeAsset,
		Volume:         o.Volume,
		RealizedVolume: o.RealizedVolume,
		UpdateTime:     o.UpdateTime,
	}
	if o.Price.Valid {
		price := o.Price.Value
		dto.Price = &price
	}
	if !math.IsNaN(o.AveragePrice) {
		avg := o.AveragePrice
		dto.AveragePrice = &avg
	}
	return dto
}

type handleDTO struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
}

type batchResultDTO struct {
	handleDTO
	Error string `json:"error,omitempty"`
}

type submitRequest struct {
	Symbol        string   `json:"symbol" binding:"required"`
	Side          string   `json:"side" binding:"required"`
	Price         *float64 `json:"price"`
	Volume        float64  `json:"volume" binding:"required"`
	ClientOrderID string   `json:"client_order_id"`
}

type batchEntry struct {
	Side          string   `json:"side" binding:"required"`
	Price         *float64 `json:"price"`
	Volume        float64  `json:"volume" binding:"required"`
	ClientOrderID string   `json:"client_order_id"`
}

type submitBatchRequest struct {
	Symbol string       `json:"symbol" binding:"required"`
	Orders []batchEntry `json:"orders" binding:"required,dive"`
}

type cancelBatchRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required"`
}

type simFillRequest struct {
	OrderID  string  `json:"order_id" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
	Price    float64 `json:"price" binding:"required"`
}

type simPriceRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Price  float64 `json:"price" binding:"required"`
}
