package api

import (
	"sort"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/errors"
	"cryptofutures/pkg/exception"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	ok(c, gin.H{
		"status":   "ok",
		"platform": s.orders.Platform().String(),
	})
}

func (s *Server) metrics(c *gin.Context) {
	ok(c, s.orders.Metrics().Snapshot())
}

func (s *Server) symbols(c *gin.Context) {
	set, err := s.orders.TradableSymbols(c.Request.Context())
	if err != nil {
		fail(c, err, nil)
		return
	}

	symbols := make([]string, 0, len(set))
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	ok(c, symbols)
}

func (s *Server) listOrders(c *gin.Context) {
	orders := s.orders.Orders()
	dto := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		dto = append(dto, newOrderDTO(o))
	}
	ok(c, dto)
}

func (s *Server) lookupOrder(c *gin.Context) {
	key := adapter.OrderKey{
		OrderID:       c.Query("order_id"),
		ClientOrderID: c.Query("client_order_id"),
	}
	if key.IsEmpty() {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, "order_id or client_order_id is required"), nil)
		return
	}

	o, found := s.orders.Order(key)
	if !found {
		fail(c, errors.Wrapf(exception.ErrNotFound, "lookup %s", key), nil)
		return
	}
	ok(c, newOrderDTO(o))
}

func parseSide(s string) (enum.OrderSide, error) {
	side, found := enum.ParseOrderSide(s)
	if !found {
		return side, errors.Wrapf(exception.ErrInvalidArgument, "%s: %q", exception.ErrOrderInvalidSide, s)
	}
	return side, nil
}

func optionalPrice(p *float64) adapter.Optional[float64] {
	if p == nil {
		return adapter.None[float64]()
	}
	return adapter.Some(*p)
}

func (s *Server) submitOrder(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, err.Error()), nil)
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		fail(c, err, nil)
		return
	}

	handle, err := s.orders.SubmitOrder(c.Request.Context(), req.Symbol, side, optionalPrice(req.Price), req.Volume, req.ClientOrderID)
	dto := handleDTO{OrderID: handle.OrderID, ClientOrderID: handle.ClientOrderID}
	if err != nil {
		fail(c, err, dto)
		return
	}
	ok(c, dto)
}

func (s *Server) submitOrders(c *gin.Context) {
	var req submitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, err.Error()), nil)
		return
	}

	reqs := make([]adapter.OrderRequest, 0, len(req.Orders))
	for _, entry := range req.Orders {
		side, err := parseSide(entry.Side)
		if err != nil {
			fail(c, err, nil)
			return
		}
		reqs = append(reqs, adapter.OrderRequest{
			Side:          side,
			Price:         optionalPrice(entry.Price),
			Volume:        entry.Volume,
			ClientOrderID: entry.ClientOrderID,
		})
	}

	results, err := s.orders.SubmitOrders(c.Request.Context(), req.Symbol, reqs)
	if len(results) == 0 && err != nil {
		fail(c, err, nil)
		return
	}

	dto := make([]batchResultDTO, 0, len(results))
	for _, r := range results {
		item := batchResultDTO{handleDTO: handleDTO{OrderID: r.OrderID, ClientOrderID: r.ClientOrderID}}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		dto = append(dto, item)
	}

	// per-order outcomes are in the body even when whole chunks failed
	if err != nil {
		fail(c, err, dto)
		return
	}
	ok(c, dto)
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID, clientOrderID := c.Query("order_id"), c.Query("client_order_id")
	if err := s.orders.CancelOrder(c.Request.Context(), orderID, clientOrderID); err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, nil)
}

func (s *Server) cancelOrders(c *gin.Context) {
	var req cancelBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, err.Error()), nil)
		return
	}

	if err := s.orders.CancelOrders(c.Request.Context(), req.OrderIDs); err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, nil)
}

func (s *Server) positions(c *gin.Context) {
	ok(c, s.orders.Positions())
}

func (s *Server) balances(c *gin.Context) {
	ok(c, s.orders.Balances())
}

func (s *Server) simFill(c *gin.Context) {
	var req simFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, err.Error()), nil)
		return
	}

	if err := s.sim.Fill(req.OrderID, req.Quantity, req.Price); err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, nil)
}

func (s *Server) simPrice(c *gin.Context) {
	var req simPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errors.Wrap(exception.ErrInvalidArgument, err.Error()), nil)
		return
	}

	s.sim.SetPrice(req.Symbol, req.Price)
	ok(c, nil)
}
