package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const usage = `用法: autoexecctl [-addr URL] <命令> [参数]

命令:
  status                      引擎与执行器状态
  orders [-limit N]           最近订单
  large-orders [-days N] [SYMBOL]
                              大额订单汇总，给出 SYMBOL 时列出明细
  alerts [-level LEVEL]       未解决告警
  run [-async]                执行一轮策略扫描
  start | stop                启停策略执行器
  halt | resume               手动熔断 / 恢复引擎下单
  event NAME [-data JSON]     推送宏观事件
  watch [-interval D]         全屏状态看板
`

func main() {
	addr := flag.String("addr", envOr("AUTOEXEC_CONTROL_URL", "http://127.0.0.1:8080"), "控制面地址")
	timeout := flag.Duration("timeout", 30*time.Second, "请求超时")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := newClient(*addr, *timeout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, c, os.Stdout, flag.Arg(0), flag.Args()[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client, out io.Writer, cmd string, args []string) error {
	switch cmd {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		renderStatus(out, st)

	case "orders":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		limit := fs.Int("limit", 20, "条数")
		if err := fs.Parse(args); err != nil {
			return err
		}
		orders, err := c.Orders(ctx, *limit)
		if err != nil {
			return err
		}
		renderOrders(out, orders)

	case "large-orders":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		days := fs.Int("days", 7, "统计天数")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() > 0 {
			recs, err := c.LargeOrdersBySymbol(ctx, fs.Arg(0), *days)
			if err != nil {
				return err
			}
			renderLargeOrders(out, recs)
			return nil
		}
		sum, err := c.LargeOrderSummary(ctx, *days)
		if err != nil {
			return err
		}
		renderLargeSummary(out, sum)

	case "alerts":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		level := fs.String("level", "", "info|warning|error|critical")
		if err := fs.Parse(args); err != nil {
			return err
		}
		alerts, err := c.Alerts(ctx, *level)
		if err != nil {
			return err
		}
		renderAlerts(out, alerts)

	case "run":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		async := fs.Bool("async", false, "只唤醒后台循环，不等待结果")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *async {
			if err := c.TriggerPass(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "已触发")
			return nil
		}
		res, err := c.RunPass(ctx)
		if err != nil {
			return err
		}
		renderPass(out, res)

	case "start", "stop":
		st, err := c.SetExecutorRunning(ctx, cmd == "start")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "running=%v markets=%d\n", st.Running, len(st.Markets))

	case "halt", "resume":
		st, err := c.SetTradingHalted(ctx, cmd == "halt")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "circuit_breaker_open=%v\n", st.CircuitBreaker)

	case "event":
		if len(args) == 0 {
			return fmt.Errorf("event 需要事件名")
		}
		name := args[0]
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		raw := fs.String("data", "", "事件数据（JSON 对象）")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var data map[string]any
		if *raw != "" {
			if err := json.Unmarshal([]byte(*raw), &data); err != nil {
				return fmt.Errorf("-data 不是合法的 JSON 对象: %w", err)
			}
		}
		res, err := c.Event(ctx, name, data)
		if err != nil {
			return err
		}
		renderEvent(out, res)

	case "watch":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		interval := fs.Duration("interval", 2*time.Second, "刷新间隔")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return runWatch(ctx, c, *interval)

	default:
		return fmt.Errorf("未知命令 %q", cmd)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
