package llmstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haowjy/meridian-stream-go/internal/tracer"
)

// Orchestrator runs the tool calls of one turn as a batch:
// pending → invoking → done/error, with mcp_tool.complete emitted once every
// call of the batch has resolved. One orchestrator serves one pipeline; the
// catalog it reads is shared and immutable.
type Orchestrator struct {
	catalog     *ToolCatalog
	executor    ToolExecutor
	toolTimeout time.Duration
	maxParallel int
	logger      *slog.Logger
}

// NewOrchestrator creates an orchestrator. executor serves catalog tools
// registered without their own executor and may be nil.
func NewOrchestrator(catalog *ToolCatalog, executor ToolExecutor, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		catalog:     catalog,
		executor:    executor,
		toolTimeout: cfg.ToolTimeout,
		maxParallel: cfg.MaxParallelTools,
		logger:      logger,
	}
}

// RunBatch resolves, validates and invokes calls, emitting the batch's
// status transitions. It returns the resolved responses in call order.
// Per-call failures are reported in the responses and as scoped error
// chunks; the returned error is non-nil only when emission or the parent
// context failed, in which case nothing further is emitted.
func (o *Orchestrator) RunBatch(ctx context.Context, turn int, calls []ToolCall, emit Emit) ([]ToolResponse, error) {
	send := func(c Chunk) error {
		c.Turn = turn
		return emit(c)
	}

	responses := make([]ToolResponse, len(calls))
	tools := make([]*CatalogTool, len(calls))
	var failures []Chunk

	for i, call := range calls {
		resp := ToolResponse{
			ID:           NewToolResponseID(),
			ToolCallID:   call.ID,
			ToolName:     call.Name,
			RawArguments: call.Arguments,
			Signature:    call.Signature,
			Status:       ToolStatusPending,
		}
		tool, args, err := o.resolve(call)
		if tool != nil {
			resp.Tool = tool.Definition
		}
		resp.Arguments = args
		if err != nil {
			resp.Status = ToolStatusError
			resp.Error = err.Error()
			failures = append(failures, Chunk{
				Type: ChunkError,
				Error: &ChunkErr{
					Code:           ErrorCodeOf(err),
					Message:        err.Error(),
					ToolResponseID: resp.ID,
				},
			})
			o.logger.Warn("tool call rejected", "tool", call.Name, "call_id", call.ID, "error", err)
		}
		responses[i] = resp
		tools[i] = tool
	}

	if err := send(Chunk{Type: ChunkToolPending, Responses: cloneResponses(responses)}); err != nil {
		return nil, err
	}
	for _, f := range failures {
		if err := send(f); err != nil {
			return nil, err
		}
	}

	var invoking []ToolResponse
	for i := range responses {
		if responses[i].Status == ToolStatusPending {
			responses[i].Status = ToolStatusInvoking
			invoking = append(invoking, responses[i])
		}
	}
	if len(invoking) > 0 {
		if err := send(Chunk{Type: ChunkToolInProgress, Responses: invoking}); err != nil {
			return nil, err
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.maxParallel)
	for i := range responses {
		if responses[i].Status != ToolStatusInvoking {
			continue
		}
		g.Go(func() error {
			// Each goroutine owns responses[i]; no other writer touches it.
			o.invoke(ctx, tools[i], &responses[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := send(Chunk{Type: ChunkToolComplete, Responses: cloneResponses(responses)}); err != nil {
		return nil, err
	}
	return responses, nil
}

// resolve looks the call up in the catalog and parses its arguments.
func (o *Orchestrator) resolve(call ToolCall) (*CatalogTool, map[string]any, error) {
	tool, ok := o.catalog.Lookup(call.Name)
	if !ok {
		return nil, nil, &ToolError{Code: ErrorCodeUnknownTool, ToolName: call.Name, CallID: call.ID, Err: ErrUnknownTool}
	}

	args, err := ParseToolArguments(call.Arguments)
	if err != nil {
		return tool, nil, &ToolError{Code: ErrorCodeToolArgumentsInvalid, ToolName: call.Name, CallID: call.ID, Err: err}
	}

	if err := tool.ValidateArguments(args); err != nil {
		return tool, args, &ToolError{Code: ErrorCodeToolArgumentsSchema, ToolName: call.Name, CallID: call.ID, Err: err}
	}
	return tool, args, nil
}

// invoke runs one call under its own timeout and records the outcome.
func (o *Orchestrator) invoke(ctx context.Context, tool *CatalogTool, resp *ToolResponse) {
	ctx, span := tracer.StartSpan(ctx, "llmstream.tool")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("tool.name", resp.ToolName), tracer.StringAttr("tool.response_id", resp.ID))

	exec := tool.Executor
	if exec == nil {
		exec = o.executor
	}
	if exec == nil {
		resp.Status = ToolStatusError
		resp.Error = fmt.Sprintf("no executor for tool %s", resp.ToolName)
		tracer.RecordError(span, errors.New(resp.Error))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := exec.CallTool(callCtx, tool.Definition, resp.Arguments)
	o.logger.Debug("tool invoked", "tool", resp.ToolName, "response_id", resp.ID, "duration", time.Since(start), "error", err)

	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		resp.Status = ToolStatusError
		resp.Error = fmt.Sprintf("tool %s timed out after %s", resp.ToolName, o.toolTimeout)
		tracer.RecordError(span, err)
	case err != nil:
		resp.Status = ToolStatusError
		resp.Error = err.Error()
		tracer.RecordError(span, err)
	case result == nil:
		resp.Status = ToolStatusDone
		resp.Result = &ToolResult{}
		tracer.SetOK(span)
	case result.IsError:
		resp.Status = ToolStatusError
		resp.Result = result
		resp.Error = resultText(result)
		tracer.RecordError(span, errors.New(resp.Error))
	default:
		resp.Status = ToolStatusDone
		resp.Result = result
		tracer.SetOK(span)
	}
}

// ParseToolArguments parses raw tool-call arguments. An empty string is an
// empty argument object; anything but a JSON object is rejected.
func ParseToolArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	if args == nil {
		// JSON null
		args = map[string]any{}
	}
	return args, nil
}

// resultText joins the text items of a tool result.
func resultText(r *ToolResult) string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, c := range r.Content {
		switch c.Type {
		case "text":
			parts = append(parts, c.Text)
		case "":
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		default:
			parts = append(parts, fmt.Sprintf("[%s %s]", c.Type, c.MimeType))
		}
	}
	return strings.Join(parts, "\n")
}

func cloneResponses(in []ToolResponse) []ToolResponse {
	return append([]ToolResponse(nil), in...)
}
