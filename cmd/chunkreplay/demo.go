package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/mcptool"
	"github.com/haowjy/meridian-stream-go/providers"
	"github.com/haowjy/meridian-stream-go/providers/lorem"
)

type demoOptions struct {
	prompt   string
	model    string
	tool     string
	words    int
	thinking bool
	config   string
	mcp      string
}

func newDemoCmd(a *app) *cobra.Command {
	o := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the engine against the lorem vendor with local tools",
		Long: `Runs one request through the full pipeline: the lorem vendor calls a
tool, the engine executes it and the next turn answers. Tools are an
in-process MCP echo server ("local_echo"), a local word counter
("word_count") and any servers listed in --mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), a, o, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&o.prompt, "prompt", "Say something in Latin.", "user message")
	cmd.Flags().StringVar(&o.model, "model", "lorem-fast", "lorem model (lorem-fast, lorem-slow, lorem-instant, lorem-cutoff)")
	cmd.Flags().StringVar(&o.tool, "tool", "local_echo", "tool the lorem vendor calls")
	cmd.Flags().IntVar(&o.words, "words", 12, "words per text run")
	cmd.Flags().BoolVar(&o.thinking, "thinking", false, "include a thinking run")
	cmd.Flags().StringVar(&o.config, "config", "", "engine config YAML overriding the defaults")
	cmd.Flags().StringVar(&o.mcp, "mcp", "", "MCP servers YAML to connect in addition to the local ones")
	return cmd
}

type wordCountInput struct {
	Text string `json:"text" jsonschema:"description=Text to count words in"`
}

func runDemo(ctx context.Context, a *app, o demoOptions, w io.Writer) error {
	cfg := llmstream.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = llmstream.LoadConfigFromFile(o.config); err != nil {
			return err
		}
	}

	bridge := mcptool.NewBridge(mcptool.WithLogger(a.logger))
	if o.mcp != "" {
		mcpCfg, err := mcptool.LoadConfig(o.mcp)
		if err != nil {
			return err
		}
		if bridge, err = mcptool.Connect(ctx, mcpCfg, mcptool.WithLogger(a.logger)); err != nil {
			return err
		}
	}
	defer bridge.Close()

	if err := bridge.AddInProcess(ctx, "local", newEchoServer()); err != nil {
		return err
	}

	def, exec, err := llmstream.NewFuncTool("word_count", "Count the words in a text",
		func(_ context.Context, in wordCountInput) (*llmstream.ToolResult, error) {
			return llmstream.TextResult(fmt.Sprint(len(strings.Fields(in.Text))), false), nil
		})
	if err != nil {
		return err
	}
	catalog, err := bridge.Catalog(llmstream.CatalogTool{Definition: def, Executor: exec})
	if err != nil {
		return err
	}

	model := lorem.NewModel(lorem.WithWords(o.words), lorem.WithToolName(o.tool), lorem.WithLogger(a.logger))
	tr, err := providers.NewTransformer(model.Provider(), providers.WithLogger(a.logger))
	if err != nil {
		return err
	}

	engine := llmstream.NewEngine(
		llmstream.WithConfig(cfg),
		llmstream.WithCatalog(catalog),
		llmstream.WithLogger(a.logger),
	)
	stream := engine.Run(ctx, llmstream.Request{
		Model:       model,
		Transformer: tr,
		Conversation: &llmstream.Conversation{
			Model:    o.model,
			Messages: []llmstream.Message{llmstream.NewUserMessage(o.prompt)},
			Params:   &llmstream.RequestParams{ThinkingEnabled: &o.thinking},
		},
	})

	enc := json.NewEncoder(w)
	for c := range stream.Chunks() {
		if err := enc.Encode(c); err != nil {
			stream.Cancel()
			return err
		}
	}
	return stream.Err()
}

// newEchoServer is an MCP server with one tool that returns its input.
func newEchoServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer("chunkreplay-echo", "1.0.0", mcpserver.WithToolCapabilities(false))
	srv.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo the text back"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo")),
		),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(text), nil
		},
	)
	return srv
}
