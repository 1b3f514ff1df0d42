package agentinvoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowkit/agentctl/internal/resilience"
	"github.com/flowkit/agentctl/internal/task"
)

// HTTPInvoker implements Invoker by delegating plan/execute/judge calls
// to an external agent gateway over HTTP. What runs behind that gateway
// (which model, which prompt, which tool loop) is opaque to this module
// by design; this adapter only owns the wire contract and the transport
// resilience wrapping it, the same way the orchestrator lineage's
// HTTPTaskExecutor owns an outbound HTTP call and nothing about what the
// remote endpoint does with it.
type HTTPInvoker struct {
	client   *http.Client
	endpoint string
	tracer   trace.Tracer
	breaker  *resilience.CircuitBreaker
}

// NewHTTPInvoker constructs an HTTPInvoker pointed at endpoint (the
// agent gateway's base URL). A nil client gets a pooled default, mirroring
// the teacher's HTTPTaskExecutor constructor.
func NewHTTPInvoker(endpoint string, client *http.Client) *HTTPInvoker {
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPInvoker{
		client:   client,
		endpoint: endpoint,
		tracer:   otel.Tracer("agentctl-invoker"),
		breaker:  resilience.NewCircuitBreakerAdaptive(time.Minute, 6, 5, 0.5, 30*time.Second, 2),
	}
}

type planRequest struct {
	SessionID   task.SessionId `json:"sessionId"`
	Instruction string         `json:"instruction"`
}

type planResponse struct {
	Tasks []task.Task `json:"tasks"`
}

func (h *HTTPInvoker) Plan(ctx context.Context, sessionID task.SessionId, instruction string) ([]task.Task, error) {
	var resp planResponse
	_, err := resilience.Retry(ctx, 3, time.Second, func() (struct{}, error) {
		return struct{}{}, h.postJSON(ctx, "/plan", planRequest{SessionID: sessionID, Instruction: instruction}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("agentinvoker: plan: %w", err)
	}
	return resp.Tasks, nil
}

type executeRequest struct {
	Task    task.Task      `json:"task"`
	ExecCtx map[string]any `json:"execCtx"`
}

func (h *HTTPInvoker) Execute(ctx context.Context, t task.Task, execCtx map[string]any) (task.WorkerOutcome, error) {
	var outcome task.WorkerOutcome
	err := h.postJSON(ctx, "/execute", executeRequest{Task: t, ExecCtx: execCtx}, &outcome)
	if err != nil {
		return task.WorkerOutcome{}, fmt.Errorf("agentinvoker: execute %s: %w", t.ID, err)
	}
	return outcome, nil
}

type judgeRequest struct {
	SessionID task.SessionId       `json:"sessionId"`
	Outcomes  []task.WorkerOutcome `json:"outcomes"`
}

type judgeResponse struct {
	Passed  bool   `json:"passed"`
	Comment string `json:"comment"`
}

func (h *HTTPInvoker) Judge(ctx context.Context, sessionID task.SessionId, outcomes []task.WorkerOutcome) (bool, string, error) {
	var resp judgeResponse
	if err := h.postJSON(ctx, "/judge", judgeRequest{SessionID: sessionID, Outcomes: outcomes}, &resp); err != nil {
		return false, "", fmt.Errorf("agentinvoker: judge: %w", err)
	}
	return resp.Passed, resp.Comment, nil
}

func (h *HTTPInvoker) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	if !h.breaker.Allow() {
		return fmt.Errorf("agent gateway circuit open")
	}

	ctx, span := h.tracer.Start(ctx, "agentinvoker.post",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	b, err := json.Marshal(reqBody)
	if err != nil {
		h.breaker.RecordResult(false)
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+path, bytes.NewReader(b))
	if err != nil {
		h.breaker.RecordResult(false)
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.breaker.RecordResult(false)
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		h.breaker.RecordResult(false)
		return fmt.Errorf("agent gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		h.breaker.RecordResult(true)
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("agent gateway rejected request: %d: %s", resp.StatusCode, body)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			h.breaker.RecordResult(false)
			return fmt.Errorf("decode response: %w", err)
		}
	}
	h.breaker.RecordResult(true)
	return nil
}
