// Package session wires every component into the trading-day run loop: it
// polls quotes, feeds the ORB engine, ranks and sizes the day's signals,
// executes them, and drives the exit engine's monitor ticks. This is the
// orchestration layer cmd/easyorb's `run` subcommand drives; every engine
// it calls into stays ignorant of the others.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/steinwealth/easyorb/internal/advcache"
	"github.com/steinwealth/easyorb/internal/alert"
	"github.com/steinwealth/easyorb/internal/broker"
	"github.com/steinwealth/easyorb/internal/clock"
	"github.com/steinwealth/easyorb/internal/compound"
	"github.com/steinwealth/easyorb/internal/config"
	"github.com/steinwealth/easyorb/internal/execution"
	"github.com/steinwealth/easyorb/internal/exit"
	"github.com/steinwealth/easyorb/internal/logger"
	"github.com/steinwealth/easyorb/internal/metrics"
	"github.com/steinwealth/easyorb/internal/model"
	"github.com/steinwealth/easyorb/internal/odte"
	"github.com/steinwealth/easyorb/internal/orb"
	"github.com/steinwealth/easyorb/internal/ranker"
	"github.com/steinwealth/easyorb/internal/store"
	"github.com/steinwealth/easyorb/internal/vwap"
)

// Runner owns every per-symbol and per-day engine and drives one
// monitor-interval tick at a time. It is not safe for more than one
// concurrent RunOnce — the CLI runs a single Runner per account.
type Runner struct {
	cfg       *config.Config
	clk       *clock.Clock
	br        broker.Broker
	accountID string

	orbEngine *orb.Engine
	compound  *compound.Engine
	exec      *execution.Engine
	exitEng   *exit.Engine
	adv       *advcache.Cache
	slip      *advcache.SlipGuard
	st        *store.Store
	alerts    alert.Sink

	symbols      []model.Symbol
	totalCapital float64
	tradingDate  string
	log          *logger.Logger

	// 0DTE (C9) state. Nil/empty until EnableZeroDTE is called; RunOnce
	// skips options evaluation entirely when zeroDTESymbols is empty so
	// existing callers that never enable it pay no cost.
	zeroDTESymbols map[string]bool
	odteGates      odte.GateThresholds
	redDay         odte.RedDayDetector
	odteSem        *semaphore.Weighted
	openOptions    map[string]*model.OptionsPosition
	peakOptionPnL  map[string]float64
}

// New wires a Runner for one trading day against totalCapital (the
// account's starting equity for sizing). st may be nil to skip
// persistence (e.g. a dry-run or a test harness); adv must be non-nil.
func New(cfg *config.Config, clk *clock.Clock, b broker.Broker, accountID string, symbols []model.Symbol, totalCapital float64, adv *advcache.Cache, st *store.Store, sink alert.Sink) *Runner {
	if sink == nil {
		sink = alert.NewLogSink()
	}
	comp := compound.New(totalCapital)
	exitEng := exit.New(clk, b, comp)
	exitEng.SetAlertSink(sink)
	r := &Runner{
		cfg:          cfg,
		clk:          clk,
		br:           b,
		accountID:    accountID,
		orbEngine:    orb.New(clk),
		compound:     comp,
		exec:         execution.New(b, comp, sink),
		exitEng:      exitEng,
		adv:          adv,
		slip:         advcache.NewSlipGuard(adv, cfg.SlipGuardEnabled, cfg.SlipGuardADVPct, cfg.SlipGuardLookbackDays),
		st:           st,
		alerts:       sink,
		symbols:      symbols,
		totalCapital: totalCapital,
		log:          logger.For("session"),
	}
	return r
}

// EnableZeroDTE turns on the 0DTE options layer (C9) for the given
// candidate symbols, gated each cycle by detector. Callers that never call
// this leave RunOnce's options evaluation fully skipped, so existing demo
// and test wiring is unaffected.
func (r *Runner) EnableZeroDTE(symbols []model.Symbol, detector odte.RedDayDetector) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s.Ticker] = true
	}
	r.zeroDTESymbols = set
	r.odteGates = odte.DefaultGates
	r.redDay = detector
	r.odteSem = semaphore.NewWeighted(int64(r.cfg.MaxInFlightBrokerCalls))
	r.openOptions = make(map[string]*model.OptionsPosition)
	r.peakOptionPnL = make(map[string]float64)
}

// Compound exposes the capital engine for the admin status endpoint.
func (r *Runner) Compound() *compound.Engine { return r.compound }

// ExitEngine exposes the exit engine for the admin status endpoint.
func (r *Runner) ExitEngine() *exit.Engine { return r.exitEng }

// RunCloseWorker runs the exit engine's serialized close-submission loop.
// Callers launch this once, in its own goroutine, before the first RunOnce.
func (r *Runner) RunCloseWorker(ctx context.Context) {
	r.exitEng.RunCloseWorker(ctx, r.accountID)
}

// RestoreCompound replaces the compound engine's state from a persisted
// snapshot, used on process restart within the same trading day.
func (r *Runner) RestoreCompound(s compound.State) {
	r.compound.Restore(s)
}

// RunOnce drives one monitor-interval cycle at now: skip outside market
// hours, reset per-day bookkeeping on a date rollover, evaluate new ORB
// signals, rank and execute them, then monitor every open position.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) error {
	phase := r.clk.Phase(now)
	if phase != model.PhaseOpen {
		r.log.Debugf("phase %s, skipping cycle", phase)
		return nil
	}

	date := r.clk.TradingDate(now)
	if date != r.tradingDate {
		if r.tradingDate != "" && r.st != nil && r.zeroDTESymbols != nil && len(r.openOptions) == 0 {
			path := fmt.Sprintf("%s/options-history-%s.zst", r.cfg.StateDir, r.tradingDate)
			if err := r.st.ExportClosedOptionsHistory(path); err != nil {
				r.log.Warnf("export closed options history failed: %v", err)
			}
		}
		r.log.Infof("new trading day %s, resetting daily state", date)
		r.tradingDate = date
		r.exec.ResetDay()
	}

	tickers := make([]string, len(r.symbols))
	for i, s := range r.symbols {
		tickers[i] = s.Ticker
	}
	quotes, err := r.br.GetQuote(ctx, tickers)
	if err != nil {
		return err
	}

	bySymbol := make(map[string]broker.Quote, len(quotes))
	var inputs []ranker.Input
	var zdteCandidates []zeroDTECandidate
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
		r.feedBar(q, now)

		adv, _ := r.adv.ADV(q.Symbol)
		volRatio := 0.0
		if adv > 0 {
			volRatio = float64(q.Volume) / adv
		}

		sig := r.orbEngine.Evaluate(q.Symbol, orb.MarketTick{Price: q.Last, VolumeRatio: volRatio}, now)
		if sig == nil {
			continue
		}
		metrics.SignalsEmitted.WithLabelValues(string(sig.SignalType), string(sig.Side)).Inc()

		orbData := r.orbEngine.ORBFor(q.Symbol, now)
		in := ranker.Input{Signal: *sig}
		breakoutPct := 0.0
		if orbData != nil && orbData.ORBRange > 0 {
			in.ORBRangePct = orbData.ORBRangePct
			extreme, dir := orbData.ORBHigh, 1.0
			if sig.Side == model.Short {
				extreme, dir = orbData.ORBLow, -1.0
			}
			breakoutPct = dir * (sig.PriceAtEmit - extreme) / extreme
			in.BreakoutPct = breakoutPct
			in.MomentumPct = dir * (q.Last - extreme) / extreme
		}
		inputs = append(inputs, in)

		if r.zeroDTESymbols[q.Symbol] && orbData != nil {
			zdteCandidates = append(zdteCandidates, zeroDTECandidate{
				Signal:           *sig,
				ORB:              *orbData,
				ADV:              adv,
				BreakoutPctNow:   breakoutPct,
				MinutesSinceOpen: int(now.Sub(r.clk.Open(now)).Minutes()),
			})
		}
	}

	if len(zdteCandidates) > 0 {
		r.evaluateZeroDTE(ctx, zdteCandidates, now)
	}

	if len(inputs) > 0 {
		ranked := ranker.Rank(inputs)
		capital := r.compound.AvailableForSO()
		sized := ranker.SizeAllocations(ranked, capital, r.cfg.MaxPositionPct)
		for i := range sized {
			sized[i].CapitalAllocated = r.slip.CapNotional(sized[i].Ticker, sized[i].CapitalAllocated)
		}
		events := r.exec.ExecuteRanked(ctx, r.accountID, sized, now)
		for _, ev := range events {
			r.exitEng.Register(ev.Position)
			metrics.PositionsOpened.WithLabelValues(string(ev.Position.SignalType)).Inc()
			if r.st != nil {
				if err := r.st.SavePosition(ev.Position); err != nil {
					r.log.Warnf("persist position %s failed: %v", ev.Position.PositionID, err)
				}
			}
		}
	}

	r.monitorOpenPositions(bySymbol, now)
	if len(r.openOptions) > 0 {
		r.monitorOpenOptions(ctx, now)
	}

	if r.st != nil {
		if err := r.st.SaveCompoundState(r.tradingDate, r.compound.Snapshot()); err != nil {
			r.log.Warnf("persist compound state failed: %v", err)
		}
	}
	return nil
}

// Run ticks RunOnce on cfg.MonitorInterval until ctx is cancelled, logging
// (rather than aborting) a cycle's error so a single bad quote fetch never
// kills the process.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.RunOnce(ctx, now); err != nil {
				r.log.Errorf("cycle failed: %v", err)
			}
		}
	}
}

func (r *Runner) feedBar(q broker.Quote, now time.Time) {
	bar := vwap.Bar{
		Time:   q.AsOf,
		Open:   q.Open,
		High:   q.High,
		Low:    q.Low,
		Close:  q.Last,
		Volume: float64(q.Volume),
	}
	if bar.Time.IsZero() {
		bar.Time = now
	}
	r.orbEngine.OnBar(q.Symbol, bar, now)
}

func (r *Runner) monitorOpenPositions(quotes map[string]broker.Quote, now time.Time) {
	for _, id := range r.exitEng.Open() {
		pos, ok := r.exitEng.Position(id)
		if !ok {
			continue
		}
		q, ok := quotes[pos.Symbol]
		stale := !ok
		price := pos.CurrentPrice
		spread := 0.0
		if ok {
			price = q.Last
			spread = q.Ask - q.Bid
		}
		vw := price
		if v := r.orbEngine.VWAP(pos.Symbol).VWAP(); v > 0 {
			vw = v
		}
		intent := r.exitEng.MonitorTick(id, exit.Tick{Price: price, VWAP: vw, BidAskSpread: spread, Stale: stale, Now: now})
		if intent != nil {
			metrics.PositionsClosed.WithLabelValues(string(intent.Reason)).Inc()
		}
	}
}

// zeroDTECandidate bundles one symbol's fresh ORB signal with the context
// odte.Decide needs, collected inline during RunOnce's equity loop so the
// options path never re-evaluates the ORB engine.
type zeroDTECandidate struct {
	Signal           model.ORBSignal
	ORB              model.ORBData
	ADV              float64
	BreakoutPctNow   float64
	MinutesSinceOpen int
}

// chainFetch is one candidate's option-chain fetch result, collected
// concurrently under odteSem's bound on in-flight broker calls.
type chainFetch struct {
	candidate zeroDTECandidate
	chain     []model.OptionContract
	err       error
}

// evaluateZeroDTE runs the red-day gate, then fans out one option-chain
// fetch per candidate bounded by odteSem, decides each with odte.Decide,
// and opens every eligible result in priority order against the shared
// compound ceiling.
func (r *Runner) evaluateZeroDTE(ctx context.Context, candidates []zeroDTECandidate, now time.Time) {
	red, err := r.redDay.IsRedDay(ctx)
	if err != nil {
		r.log.Warnf("red day detector failed: %v, skipping 0DTE this cycle", err)
		return
	}
	if red {
		r.log.Infof("red day detected, suppressing 0DTE entries this cycle")
		return
	}

	results := make([]chainFetch, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		go func(i int, c zeroDTECandidate) {
			defer wg.Done()
			if err := r.odteSem.Acquire(ctx, 1); err != nil {
				results[i] = chainFetch{candidate: c, err: err}
				return
			}
			defer r.odteSem.Release(1)

			calls, puts, err := r.br.GetOptionChain(ctx, c.Signal.Ticker, c.ORB.TradingDate, 6, true)
			chain := calls
			if c.Signal.Side == model.Short {
				chain = puts
			}
			results[i] = chainFetch{candidate: c, chain: chain, err: err}
		}(i, c)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			r.log.Warnf("%s: option chain fetch failed: %v", res.candidate.Signal.Ticker, res.err)
			continue
		}
		d := odte.Decide(odte.DecideInput{
			Signal:           res.candidate.Signal,
			ORB:              res.candidate.ORB,
			UnderlyingADV:    res.candidate.ADV,
			Chain:            res.chain,
			MinutesSinceOpen: res.candidate.MinutesSinceOpen,
			BreakoutPctNow:   res.candidate.BreakoutPctNow,
			AvailableCapital: r.compound.AvailableForSO(),
			TotalCapital:     r.totalCapital,
		}, r.odteGates)
		if !d.Eligible {
			continue
		}
		if !r.compound.CanOpen(d.Notional) {
			r.log.Debugf("%s: 0DTE candidate eligible but no capital room", res.candidate.Signal.Ticker)
			continue
		}
		if err := r.openOneOption(ctx, res.candidate, d, now); err != nil {
			r.log.Errorf("%s: 0DTE open failed: %v", res.candidate.Signal.Ticker, err)
		}
	}
}

// openOneOption re-checks the execution-time liquidity gate, submits the
// two-leg debit order, and registers the resulting position for
// monitorOpenOptions to track.
func (r *Runner) openOneOption(ctx context.Context, c zeroDTECandidate, d odte.Decision, now time.Time) error {
	if ok, reason := odte.ExecutionTimeGate(d.Spread.LongLeg, r.odteGates); !ok {
		return fmt.Errorf("execution-time gate failed: %s", reason)
	}

	qty := float64(d.Quantity)
	order := broker.Order{
		Kind:      broker.KindNetDebit,
		PriceType: broker.Limit,
		LimitPx:   d.Spread.DebitCost,
		Term:      "GOOD_FOR_DAY",
		Legs: []broker.OrderLeg{
			{Symbol: c.Signal.Ticker, Strike: d.Spread.LongLeg.Strike, Expiry: d.Spread.Expiry, Kind: d.Spread.OptionKind, Side: broker.Buy, Qty: qty},
			{Symbol: c.Signal.Ticker, Strike: d.Spread.ShortLeg.Strike, Expiry: d.Spread.Expiry, Kind: d.Spread.OptionKind, Side: broker.Sell, Qty: qty},
		},
	}
	preview, err := r.br.PreviewOrder(ctx, r.accountID, order)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	res, err := r.br.PlaceOrder(ctx, r.accountID, order, preview.PreviewID)
	if err != nil {
		return fmt.Errorf("place order failed: %w", err)
	}

	entryPrice := res.FillPrice
	if entryPrice <= 0 {
		entryPrice = d.Spread.DebitCost
	}
	spread := d.Spread
	pos := &model.OptionsPosition{
		PositionID:       res.OrderID,
		Symbol:           c.Signal.Ticker,
		Kind:             model.KindDebitSpread,
		Side:             c.Signal.Side,
		EntryPrice:       entryPrice,
		EntryTime:        now,
		Quantity:         d.Quantity,
		OriginalQuantity: d.Quantity,
		CurrentValue:     entryPrice,
		Status:           model.StatusOpen,
		Substate:         model.SubstateFresh,
		Spread:           &spread,
	}

	r.compound.OnPositionOpened("SO", d.Notional)
	r.openOptions[pos.PositionID] = pos
	r.peakOptionPnL[pos.PositionID] = 0
	metrics.PositionsOpened.WithLabelValues(string(c.Signal.SignalType)).Inc()

	if r.st != nil {
		if err := r.st.SaveOptionsPosition(*pos); err != nil {
			r.log.Warnf("persist options position %s failed: %v", pos.PositionID, err)
		}
	}
	if r.alerts != nil {
		r.alerts.Notify(alert.Event{
			Severity:  alert.SeverityInfo,
			Component: "odte",
			Kind:      "open",
			Message:   fmt.Sprintf("opened 0DTE %s debit spread on %s", spread.OptionKind, c.Signal.Ticker),
			Fields:    map[string]any{"symbol": c.Signal.Ticker, "quantity": d.Quantity, "debit": spread.DebitCost},
		})
	}
	return nil
}

// monitorOpenOptions refetches each open 0DTE position's chain (bounded by
// odteSem), runs the options exit ladder, and submits a reversing close for
// whatever quantity the ladder flags.
func (r *Runner) monitorOpenOptions(ctx context.Context, now time.Time) {
	for id, pos := range r.openOptions {
		if pos.Spread == nil {
			continue
		}
		if err := r.odteSem.Acquire(ctx, 1); err != nil {
			continue
		}
		calls, puts, err := r.br.GetOptionChain(ctx, pos.Symbol, pos.Spread.Expiry, 6, false)
		r.odteSem.Release(1)
		if err != nil {
			r.log.Warnf("%s: monitor chain fetch failed: %v", pos.Symbol, err)
			continue
		}
		chain := calls
		if pos.Spread.OptionKind == model.Put {
			chain = puts
		}
		longMid, shortMid := pos.Spread.LongLeg.Mid(), pos.Spread.ShortLeg.Mid()
		for _, c := range chain {
			switch c.Strike {
			case pos.Spread.LongLeg.Strike:
				longMid = c.Mid()
			case pos.Spread.ShortLeg.Strike:
				shortMid = c.Mid()
			}
		}
		currentValue := longMid - shortMid

		pnlPct := 0.0
		if pos.EntryPrice != 0 {
			if pos.Kind == model.KindCreditSpread {
				pnlPct = (pos.EntryPrice - currentValue) / pos.EntryPrice
			} else {
				pnlPct = (currentValue - pos.EntryPrice) / pos.EntryPrice
			}
		}
		if pnlPct > r.peakOptionPnL[id] {
			r.peakOptionPnL[id] = pnlPct
		}
		action, qtyClosed := odte.EvaluateExit(pos, currentValue, r.peakOptionPnL[id])
		if action == odte.ActionHold {
			if r.st != nil {
				if err := r.st.SaveOptionsPosition(*pos); err != nil {
					r.log.Warnf("persist options position %s failed: %v", id, err)
				}
			}
			continue
		}

		order := broker.Order{
			Kind:      broker.KindNetCredit,
			PriceType: broker.Limit,
			LimitPx:   currentValue,
			Term:      "GOOD_FOR_DAY",
			Legs: []broker.OrderLeg{
				{Symbol: pos.Symbol, Strike: pos.Spread.LongLeg.Strike, Expiry: pos.Spread.Expiry, Kind: pos.Spread.OptionKind, Side: broker.Sell, Qty: qtyClosed},
				{Symbol: pos.Symbol, Strike: pos.Spread.ShortLeg.Strike, Expiry: pos.Spread.Expiry, Kind: pos.Spread.OptionKind, Side: broker.Buy, Qty: qtyClosed},
			},
		}
		preview, err := r.br.PreviewOrder(ctx, r.accountID, order)
		if err != nil {
			r.log.Errorf("%s: close preview failed: %v", pos.Symbol, err)
			continue
		}
		res, err := r.br.PlaceOrder(ctx, r.accountID, order, preview.PreviewID)
		if err != nil {
			r.log.Errorf("%s: close order failed: %v", pos.Symbol, err)
			continue
		}

		closedNotional := qtyClosed * pos.EntryPrice * 100
		realizedPnL := (res.FillPrice - pos.EntryPrice) * qtyClosed * 100
		r.compound.OnPositionClosed("SO", closedNotional, realizedPnL)
		pos.RealizedPnL += realizedPnL
		metrics.PositionsClosed.WithLabelValues(string(action)).Inc()

		// EvaluateExit only decrements Quantity itself for a partial close;
		// a full stop-loss or runner-stop reports the whole remaining
		// quantity without mutating the position, so the flatten happens
		// here once the closing order is confirmed filled.
		if action == odte.ActionStopLoss || action == odte.ActionRunnerStop {
			pos.Quantity = 0
		}

		if r.st != nil {
			if err := r.st.RecordClosedOptionsTrade(id, pos.Symbol, pos.Kind, realizedPnL, string(action)); err != nil {
				r.log.Warnf("persist closed options trade %s failed: %v", id, err)
			}
		}
		if r.alerts != nil {
			r.alerts.Notify(alert.Event{
				Severity:  alert.SeverityInfo,
				Component: "odte",
				Kind:      string(action),
				Message:   fmt.Sprintf("%s %s 0DTE qty=%.0f pnl=%.2f", action, pos.Symbol, qtyClosed, realizedPnL),
				Fields:    map[string]any{"symbol": pos.Symbol, "quantity": qtyClosed, "realized_pnl": realizedPnL},
			})
		}

		if pos.Quantity <= 0 {
			pos.Status = model.StatusClosed
			if r.st != nil {
				if err := r.st.SaveOptionsPosition(*pos); err != nil {
					r.log.Warnf("persist options position %s failed: %v", id, err)
				}
			}
			delete(r.openOptions, id)
			delete(r.peakOptionPnL, id)
		} else if r.st != nil {
			if err := r.st.SaveOptionsPosition(*pos); err != nil {
				r.log.Warnf("persist options position %s failed: %v", id, err)
			}
		}
	}
}
