package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	llmstream "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/providers"
	"github.com/haowjy/meridian-stream-go/providers/openai"
)

// maxLine bounds one recorded chunk; vendors inline images in a single line.
const maxLine = 16 << 20

func newReplayCmd(a *app) *cobra.Command {
	var (
		provider  string
		model     string
		thinkTags bool
	)
	cmd := &cobra.Command{
		Use:   "replay [fixture.jsonl]",
		Short: "Transform a recorded vendor stream",
		Long: `Reads one raw vendor chunk per line (JSON, optionally as SSE "data:"
lines) from the file or stdin and prints the generic chunks of the turn.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			id := llmstream.ProviderID(provider)
			opts := []providers.Option{providers.WithLogger(a.logger), providers.WithModel(model)}
			if thinkTags {
				opts = append(opts, providers.WithThinkTags())
			}
			tr, err := providers.NewTransformer(id, opts...)
			if err != nil {
				return err
			}
			decode, err := decoderFor(id, model)
			if err != nil {
				return err
			}
			return replay(cmd.Context(), in, tr, decode, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "vendor id of the recording (openai, grok, anthropic, gemini, ...)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model the recording came from")
	cmd.Flags().BoolVar(&thinkTags, "think-tags", false, "split <think> runs out of chat content")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

// decodeFunc turns one recorded payload into the raw chunk type the
// vendor's transformer reads.
type decodeFunc func(data []byte) (llmstream.RawChunk, error)

func decoderFor(id llmstream.ProviderID, model string) (decodeFunc, error) {
	if id == llmstream.ProviderOpenAI && openai.UsesResponsesAPI(model) {
		return openai.DecodeResponseEvent, nil
	}
	switch id.Family() {
	case llmstream.WireFamilyChat:
		return openai.DecodeChatChunk, nil
	case llmstream.WireFamilyResponses:
		return openai.DecodeResponseEvent, nil
	case llmstream.WireFamilyAnthropic:
		return decodeAnthropicEvent, nil
	case llmstream.WireFamilyGemini:
		return decodeGeminiResponse, nil
	default:
		return nil, fmt.Errorf("%w: %q", llmstream.ErrUnknownProvider, id)
	}
}

func decodeAnthropicEvent(data []byte) (llmstream.RawChunk, error) {
	var ev anthropic.MessageStreamEventUnion
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeGeminiResponse(data []byte) (llmstream.RawChunk, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// replay transforms every recorded chunk of one turn and writes the
// generic chunks to w as JSON lines. A vendor error event is written as an
// error chunk and returned.
func replay(ctx context.Context, r io.Reader, tr llmstream.ChunkTransformer, decode decodeFunc, w io.Writer) error {
	enc := json.NewEncoder(w)
	emit := func(c llmstream.Chunk) error { return enc.Encode(c) }
	state := llmstream.NewTurnState(tr.Provider())

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for line := 1; sc.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, ok := payload(sc.Bytes())
		if !ok {
			continue
		}
		raw, err := decode(data)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := tr.Transform(raw, state, emit); err != nil {
			_ = emit(llmstream.Chunk{
				Type:  llmstream.ChunkError,
				Error: &llmstream.ChunkErr{Code: llmstream.ErrorCodeOf(err), Message: err.Error()},
			})
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return tr.Flush(state, emit)
}

// payload extracts the JSON of one recorded line. Blank lines, comments,
// SSE event names and the [DONE] sentinel carry none.
func payload(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	switch {
	case len(line) == 0, line[0] == '#', bytes.HasPrefix(line, []byte("event:")):
		return nil, false
	}
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		line = bytes.TrimSpace(rest)
	}
	if len(line) == 0 || bytes.Equal(line, []byte("[DONE]")) {
		return nil, false
	}
	return line, true
}
