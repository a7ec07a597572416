package main

import (
	"context"
	"flag"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"cryptofutures/internal/adapter"
	"cryptofutures/internal/adapter/enum"
	"cryptofutures/internal/chaos"
	"cryptofutures/internal/exchange/paper"
	"cryptofutures/internal/ops"
	"cryptofutures/internal/order"

	"github.com/yanun0323/logs"
)

// paper runs a scripted session against the paper venue: a random walk
// drives the mark price, post-only orders are placed around it and filled
// when the walk crosses them.
func main() {
	configPath := flag.String("config", "", "Path to YAML config (paper section is used)")
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to trade")
	start := flag.Float64("start-price", 50000, "Initial mark price")
	step := flag.Float64("step", 0.001, "Max relative price move per tick")
	ticks := flag.Int("ticks", 1000, "Number of price ticks")
	orderEvery := flag.Int("order-every", 10, "Place one order every N ticks (0=disable)")
	maxOrders := flag.Int("max-orders", 0, "Maximum orders to place (0=unlimited)")
	volume := flag.Float64("volume", 0.01, "Order volume")
	seed := flag.Uint64("seed", 1, "Random walk seed")
	dropRate := flag.Float64("drop-rate", 0, "User stream drop probability (0-1)")
	dupRate := flag.Float64("dup-rate", 0, "User stream duplicate probability (0-1)")
	reorderWindow := flag.Int("reorder-window", 0, "User stream reorder window size (0=disabled)")
	maxDelay := flag.Duration("max-delay", 0, "Max event time shift per user stream event")
	flag.Parse()

	if *orderEvery < 0 || *maxOrders < 0 || *ticks <= 0 {
		logs.Errorf("order-every and max-orders must be >= 0, ticks must be > 0")
		os.Exit(1)
	}

	cfg, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{
		symbol:     *symbol,
		price:      *start,
		step:       *step,
		orderEvery: *orderEvery,
		maxOrders:  *maxOrders,
		volume:     *volume,
		rnd:        rand.New(rand.NewPCG(*seed, *seed)),
		resting:    make(map[string]restingOrder),
	}
	faults := chaos.Config{
		Seed:          *seed,
		DropRate:      *dropRate,
		DuplicateRate: *dupRate,
		ReorderWindow: *reorderWindow,
		MaxDelay:      *maxDelay,
	}
	if err := s.run(ctx, cfg, faults, *ticks); err != nil {
		logs.Errorf("paper session failed, err: %+v", err)
		os.Exit(1)
	}
}

type restingOrder struct {
	side  enum.OrderSide
	price float64
}

type session struct {
	symbol     string
	price      float64
	step       float64
	orderEvery int
	maxOrders  int
	volume     float64
	rnd        *rand.Rand

	venue   *paper.Exchange
	use     *order.Usecase
	resting map[string]restingOrder

	placed  int
	fills   int
	updates atomic.Int64
}

func (s *session) run(ctx context.Context, cfg ops.Config, faults chaos.Config, ticks int) error {
	s.venue = paper.New(cfg.Paper)

	var exchange order.Exchange = s.venue
	if faults.Enabled() {
		wrapped, err := chaos.Wrap(s.venue, faults)
		if err != nil {
			return err
		}
		exchange = wrapped
		logs.Infof("chaos enabled: drop=%.2f dup=%.2f reorder=%d delay=%s",
			faults.DropRate, faults.DuplicateRate, faults.ReorderWindow, faults.MaxDelay)
	}

	use, err := order.NewUsecase(exchange, cfg.Order)
	if err != nil {
		return err
	}
	s.use = use

	use.SubscribeOrderUpdates(func(adapter.Update) { s.updates.Add(1) })
	unsubscribe, err := use.SubscribePrice(ctx, s.symbol, s.onPrice)
	if err != nil {
		return err
	}
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- use.Run(runCtx) }()

	for tick := 1; tick <= ticks; tick++ {
		if ctx.Err() != nil {
			break
		}

		s.price *= 1 + (s.rnd.Float64()*2-1)*s.step
		s.venue.SetPrice(s.symbol, s.price)

		if s.orderEvery == 0 || tick%s.orderEvery != 0 {
			continue
		}
		if s.maxOrders > 0 && s.placed >= s.maxOrders {
			continue
		}
		if err := s.place(ctx); err != nil {
			logs.Errorf("place order, err: %+v", err)
		}
	}

	s.cancelResting(ctx)
	s.settle(time.Second)

	cancel()
	if err := <-done; err != nil && ctx.Err() == nil && runCtx.Err() == nil {
		return err
	}

	s.report()
	return nil
}

// place rests a post-only order one step away from the mark price.
func (s *session) place(ctx context.Context) error {
	side := enum.OrderSideBuy
	price := s.price * (1 - s.step)
	if s.rnd.IntN(2) == 1 {
		side = enum.OrderSideSell
		price = s.price * (1 + s.step)
	}

	handle, err := s.use.SubmitOrder(ctx, s.symbol, side, adapter.Some(price), s.volume, "")
	if err != nil {
		return err
	}
	s.placed++

	o, ok := s.use.Order(adapter.OrderKey{OrderID: handle.OrderID})
	if !ok {
		return nil
	}
	s.resting[handle.OrderID] = restingOrder{side: side, price: o.Price.Value}
	return nil
}

// onPrice runs inside SetPrice on the session goroutine.
func (s *session) onPrice(p adapter.Price) {
	for id, o := range s.resting {
		crossed := (o.side == enum.OrderSideBuy && p.Price <= o.price) ||
			(o.side == enum.OrderSideSell && p.Price >= o.price)
		if !crossed {
			continue
		}

		rec, _ := s.use.Order(adapter.OrderKey{OrderID: id})
		if err := s.venue.Fill(id, math.Abs(rec.Volume), rec.Price.Value); err != nil {
			logs.Errorf("fill %s, err: %+v", id, err)
		} else {
			s.fills++
		}
		delete(s.resting, id)
	}
}

func (s *session) cancelResting(ctx context.Context) {
	if len(s.resting) == 0 {
		return
	}

	ids := make([]string, 0, len(s.resting))
	for id := range s.resting {
		ids = append(ids, id)
	}
	if err := s.use.CancelOrders(ctx, ids); err != nil {
		logs.Errorf("cancel %d resting orders, err: %+v", len(ids), err)
	}
}

// settle waits until the reconciler has seen a terminal status for every
// placed order.
func (s *session) settle(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		open := 0
		for _, o := range s.use.Orders() {
			if !o.Status.IsTerminal() {
				open++
			}
		}
		if open == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (s *session) report() {
	counts := make(map[enum.OrderStatus]int)
	for _, o := range s.use.Orders() {
		counts[o.Status]++
	}

	m := s.use.Metrics().Snapshot()
	logs.Infof("paper completed: symbol=%s last=%.2f orders=%d fills=%d updates=%d", s.symbol, s.price, s.placed, s.fills, s.updates.Load())
	logs.Infof("statuses: filled=%d canceled=%d rejected=%d open=%d",
		counts[enum.OrderStatusFilled], counts[enum.OrderStatusCanceled], counts[enum.OrderStatusRejected],
		len(s.use.Orders())-counts[enum.OrderStatusFilled]-counts[enum.OrderStatusCanceled]-counts[enum.OrderStatusRejected])
	logs.Infof("submit latency avg=%s max=%s, correlation errors=%d", m.SubmitLatency.Avg, m.SubmitLatency.Max, m.CorrelationErrors)
}
