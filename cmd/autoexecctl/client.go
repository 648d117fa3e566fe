package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/monitoring"
)

type apiError struct {
	Error string `json:"error"`
}

// client 控制面 HTTP 客户端
type client struct {
	http *resty.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{http: resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr apiError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.String()
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode(), msg)
	}
	return nil
}

type statusResponse struct {
	Uptime   string                 `json:"uptime"`
	Engine   execution.EngineStatus `json:"engine"`
	Executor *executor.Status       `json:"executor,omitempty"`
	Alerts   *monitoring.Summary    `json:"alerts,omitempty"`
}

func (c *client) Status(ctx context.Context) (statusResponse, error) {
	var out statusResponse
	return out, c.do(ctx, resty.MethodGet, "/api/status", nil, &out)
}

func (c *client) Orders(ctx context.Context, limit int) ([]execution.HistoryEntry, error) {
	var out struct {
		Orders []execution.HistoryEntry `json:"orders"`
	}
	err := c.do(ctx, resty.MethodGet, "/api/orders?limit="+strconv.Itoa(limit), nil, &out)
	return out.Orders, err
}

func (c *client) LargeOrderSummary(ctx context.Context, days int) (largeorder.Summary, error) {
	var out largeorder.Summary
	err := c.do(ctx, resty.MethodGet, "/api/large-orders/summary?days="+strconv.Itoa(days), nil, &out)
	return out, err
}

func (c *client) LargeOrdersBySymbol(ctx context.Context, symbol string, days int) ([]largeorder.Record, error) {
	var out struct {
		Orders []largeorder.Record `json:"orders"`
	}
	path := "/api/large-orders/" + url.PathEscape(symbol) + "?days=" + strconv.Itoa(days)
	err := c.do(ctx, resty.MethodGet, path, nil, &out)
	return out.Orders, err
}

func (c *client) Alerts(ctx context.Context, level string) ([]monitoring.Alert, error) {
	var out struct {
		Alerts []monitoring.Alert `json:"alerts"`
	}
	err := c.do(ctx, resty.MethodGet, "/api/alerts?level="+url.QueryEscape(level), nil, &out)
	return out.Alerts, err
}

func (c *client) RunPass(ctx context.Context) (executor.PassResult, error) {
	var out executor.PassResult
	return out, c.do(ctx, resty.MethodPost, "/api/executor/run", nil, &out)
}

func (c *client) TriggerPass(ctx context.Context) error {
	return c.do(ctx, resty.MethodPost, "/api/executor/run?async=true", nil, nil)
}

func (c *client) SetExecutorRunning(ctx context.Context, running bool) (executor.Status, error) {
	path := "/api/executor/stop"
	if running {
		path = "/api/executor/start"
	}
	var out executor.Status
	return out, c.do(ctx, resty.MethodPost, path, nil, &out)
}

// SetTradingHalted 手动熔断或恢复引擎下单
func (c *client) SetTradingHalted(ctx context.Context, halted bool) (execution.EngineStatus, error) {
	path := "/api/engine/resume"
	if halted {
		path = "/api/engine/halt"
	}
	var out execution.EngineStatus
	return out, c.do(ctx, resty.MethodPost, path, nil, &out)
}

func (c *client) Event(ctx context.Context, name string, data map[string]any) (executor.EventResult, error) {
	var out executor.EventResult
	if data == nil {
		data = map[string]any{}
	}
	return out, c.do(ctx, resty.MethodPost, "/api/events/"+url.PathEscape(name), data, &out)
}
