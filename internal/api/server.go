package api

import (
	"context"
	"net/http"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/obs"

	"github.com/gin-gonic/gin"
	"github.com/yanun0323/logs"
)

// Orders is the part of order.Usecase the operator API drives.
type Orders interface {
	Platform() enum.Platform
	Metrics() *obs.Metrics
	TradableSymbols(ctx context.Context) (map[string]struct{}, error)
	SubmitOrder(ctx context.Context, symbol string, side enum.OrderSide, price adapter.Optional[float64], volume float64, clientOrderID string) (adapter.OrderHandle, error)
	SubmitOrders(ctx context.Context, symbol string, reqs []adapter.OrderRequest) ([]adapter.BatchResult, error)
	CancelOrder(ctx context.Context, orderID, clientOrderID string) error
	CancelOrders(ctx context.Context, orderIDs []string) error
	Order(key adapter.OrderKey) (adapter.Order, bool)
	Orders() []adapter.Order
	Positions() []adapter.Position
	Balances() []adapter.Balance
}

// Simulator drives a paper venue.
type Simulator interface {
	Fill(orderID string, qty, price float64) error
	SetPrice(symbol string, price float64)
}

// Server exposes Orders over HTTP.
type Server struct {
	orders Orders
	sim    Simulator
	engine *gin.Engine
}

type Option func(*Server)

// WithSimulator adds the /sim routes.
func WithSimulator(sim Simulator) Option {
	return func(s *Server) { s.sim = sim }
}

func New(orders Orders, opts ...Option) *Server {
	s := &Server{
		orders: orders,
		engine: gin.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(gin.Recovery(), accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)
	r.GET("/symbols", s.symbols)

	r.GET("/orders", s.listOrders)
	r.GET("/orders/lookup", s.lookupOrder)
	r.POST("/orders", s.submitOrder)
	r.POST("/orders/batch", s.submitOrders)
	r.DELETE("/orders", s.cancelOrder)
	r.DELETE("/orders/batch", s.cancelOrders)

	r.GET("/positions", s.positions)
	r.GET("/balances", s.balances)

	if s.sim != nil {
		r.POST("/sim/fill", s.simFill)
		r.POST("/sim/price", s.simPrice)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			logs.Errorf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		logs.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}
