package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/xdooria-ai/app/robot/internal/brain"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/fault"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/metrics"
	"github.com/lk2023060901/xdooria-ai/app/robot/internal/world"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/composite"
	"github.com/lk2023060901/xdooria-ai/pkg/behavior/roster"
	"github.com/lk2023060901/xdooria-ai/pkg/config"
	"github.com/lk2023060901/xdooria-ai/pkg/logger"
	xotel "github.com/lk2023060901/xdooria-ai/pkg/otel"
	"github.com/lk2023060901/xdooria-ai/pkg/sentry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. 加载配置
	cfg, path, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志，日志条数计入指标
	logs := metrics.NewLogCounter(cfg.Metrics.Namespace)
	l, err := logger.New(&cfg.Log, logger.WithHooks(logs.Hook()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = l.Sync() }()

	if err := run(cfg, path, l, logs); err != nil {
		l.Error("robot simulation failed", "error", err)
		_ = l.Sync()
		os.Exit(1)
	}
}

func run(cfg *Config, path string, l logger.Logger, logs *metrics.LogCounter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 追踪
	tp, err := xotel.New(ctx, &cfg.Otel)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			l.Warn("failed to shutdown tracer provider", "error", err)
		}
	}()

	// 4. 故障上报，未配置 DSN 时只记录日志
	var (
		reporter composite.FaultReporter
		sc       *sentry.Client
	)
	if cfg.Sentry.DSN != "" {
		sc, err = sentry.New(&cfg.Sentry)
		if err != nil {
			return err
		}
		defer func() {
			_ = sc.Close()
			st := sc.Stats()
			l.Info("sentry client closed",
				"events_total", st.EventsTotal,
				"events_captured", st.EventsCaptured,
				"events_dropped", st.EventsDropped,
			)
		}()
		reporter = fault.NewThrottled(sc, &cfg.Fault, l)
	}

	// 5. 指标
	ms, err := metrics.NewServer(&cfg.Metrics, l)
	if err != nil {
		return err
	}
	recorder, err := metrics.NewRecorder(ms.Registry(), &cfg.Metrics)
	if err != nil {
		return err
	}
	if err := logs.Register(ms.Registry()); err != nil {
		return err
	}
	if err := ms.Start(); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ms.Shutdown(sctx); err != nil {
			l.Warn("failed to shutdown metrics server", "error", err)
		}
	}()

	// 6. 世界和机器人
	w, err := world.New(&cfg.World)
	if err != nil {
		return err
	}

	ctrlOpts := []composite.Option{
		composite.WithLogger(l),
		composite.WithTracer(tp.Tracer(xotel.TracerName)),
		composite.WithRecorder(recorder),
	}
	if reporter != nil {
		ctrlOpts = append(ctrlOpts, composite.WithFaultReporter(reporter))
	}

	brains := make(map[string]*brain.Brain, cfg.Robots)
	for i := 0; i < cfg.Robots; i++ {
		id := fmt.Sprintf("robot-%03d", i+1)
		if _, err := w.AddRobot(id); err != nil {
			return err
		}
		controllerCfg := cfg.Controller
		b, err := brain.New(id, w, &cfg.Brain, &controllerCfg, ctrlOpts...)
		if err != nil {
			return err
		}
		if err := b.Activate(ctx); err != nil {
			return err
		}
		brains[id] = b
	}

	// 7. 花名册，每回合先刷新感知
	rs, err := roster.New(&cfg.Roster,
		roster.WithLogger(l),
		roster.WithBeforeTurn(func(_ context.Context, agents []string) {
			for _, id := range agents {
				if err := brains[id].Sense(); err != nil {
					l.Warn("failed to sense world", "agent_id", id, "error", err)
				}
			}
		}),
	)
	if err != nil {
		return err
	}
	for id, b := range brains {
		if err := rs.Add(id, b.Controller()); err != nil {
			return err
		}
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rs.Shutdown(sctx); err != nil {
			l.Warn("failed to shutdown roster", "error", err)
		}
	}()

	// 8. 控制器配置热更新
	watcher, err := config.NewWatcher[composite.Config](path, "yaml",
		config.WithWatchKey[composite.Config]("controller"),
		config.WithWatchDefaults(composite.DefaultConfig),
		config.WithWatchValidate(func(c *composite.Config) error { return c.Validate() }),
	)
	if err != nil {
		return err
	}
	watcher.OnChange(func(c *composite.Config) {
		for id, b := range brains {
			if err := b.Controller().ApplyConfig(c); err != nil {
				l.Warn("failed to apply controller config", "agent_id", id, "error", err)
			}
		}
		l.Info("controller config reloaded", "mode", string(c.Mode), "strategy", string(c.ConflictResolution))
	})
	watcher.OnError(func(err error) {
		l.Warn("controller config rejected", "error", err)
	})
	if err := watcher.Watch(); err != nil {
		return err
	}
	defer watcher.Stop()

	// 9. 周期任务
	scheduler := cron.New(cron.WithLogger(cronLogger{l.Named("cron")}))
	if _, err := scheduler.AddFunc(cfg.Schedule.Respawn, guarded(l, sc, "respawn", func() {
		if n := w.Respawn(); n > 0 {
			l.Debug("monsters respawned", "count", n)
		}
	})); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.Schedule.Summary, guarded(l, sc, "summary", func() {
		summarize(l, w, rs, recorder, ms.System())
	})); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// 10. 驱动回合直到收到退出信号
	l.Info("robot simulation started",
		"robots", cfg.Robots,
		"mode", string(cfg.Controller.Mode),
		"turn_interval", cfg.Roster.TurnInterval.String(),
		"config", path,
	)
	rs.Run(ctx, func(turn uint64, results map[string]*composite.Result) {
		for id, res := range results {
			if !res.Success {
				l.Debug("robot tick failed", "turn", turn, "agent_id", id, "error", res.Err)
			}
		}
	})
	l.Info("robot simulation stopping", "turns", rs.Turns())
	return nil
}

func summarize(l logger.Logger, w *world.World, rs *roster.Roster, rec *metrics.Recorder, sys *metrics.SystemCollector) {
	ws := w.Stats()
	win := rec.Window()
	fields := []interface{}{
		"turns", rs.Turns(),
		"robots", ws.Robots,
		"monsters", ws.Monsters,
		"kills", ws.Kills,
		"loot", ws.Loot,
		"calm", ws.Stances[world.StanceCalm],
		"hunting", ws.Stances[world.StanceHunting],
		"fleeing", ws.Stances[world.StanceFleeing],
		"tick_rate", win.Rate,
		"success_rate", win.SuccessRate,
		"avg_latency", win.AvgLatency,
	}
	if sys != nil {
		s := sys.Stats()
		fields = append(fields, "cpu_percent", s.CPUPercent, "memory_bytes", s.MemoryBytes, "goroutines", s.Goroutines)
	}
	l.Info("simulation summary", fields...)
}

// guarded 恢复周期任务中的 panic，配置了 sentry 时一并上报
func guarded(l logger.Logger, sc *sentry.Client, job string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				l.Error("scheduled job panicked", "job", job, "panic", r)
				if sc != nil {
					sc.RecoverWithContext(context.Background(), r)
				}
			}
		}()
		fn()
	}
}

// cronLogger 把 cron 的日志接到 logger
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
