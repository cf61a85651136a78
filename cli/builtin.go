package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/petal-labs/toolflow"
)

// builtinCatalog returns a catalog preloaded with the tools the CLI ships
// with. Plan files and select queries resolve tool names against it.
func builtinCatalog() (*toolflow.Catalog, error) {
	catalog := toolflow.NewCatalog()
	for _, t := range builtinTools() {
		if err := catalog.Register(t); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func builtinTools() []toolflow.Tool {
	return []toolflow.Tool{
		newEchoTool(),
		newSleepTool(),
		newTemplateTool(),
		newUppercaseTool(),
	}
}

// newEchoTool returns the incoming parameters unchanged.
func newEchoTool() toolflow.Tool {
	return toolflow.NewFuncTool("echo", func(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
		res := toolflow.NewResult(req)
		data := map[string]any{}
		for k, v := range req.Params {
			data[k] = v
		}
		res.Data = data
		return res, nil
	}).
		WithDescription("Echo the input parameters back as the result").
		WithCapabilities("echo", "debug").
		WithVersion("1.0.0")
}

// newSleepTool blocks for the requested duration, honoring cancellation.
func newSleepTool() toolflow.Tool {
	return toolflow.NewFuncTool("sleep", func(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
		dur := 100 * time.Millisecond
		if raw, ok := req.Params["duration"].(string); ok {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
			}
			dur = parsed
		}
		select {
		case <-time.After(dur):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		res := toolflow.NewResult(req)
		res.Data = map[string]any{"slept": dur.String()}
		return res, nil
	}).
		WithDescription("Pause for a duration before returning").
		WithCapabilities("delay", "timing").
		WithVersion("1.0.0").
		WithValidator(func(ctx context.Context, req *toolflow.Request) (bool, error) {
			raw, ok := req.Params["duration"].(string)
			if !ok {
				return true, nil
			}
			if _, err := time.ParseDuration(raw); err != nil {
				return false, nil
			}
			return true, nil
		})
}

// newTemplateTool substitutes {{key}} placeholders in a template string
// with values from the parameters.
func newTemplateTool() toolflow.Tool {
	return toolflow.NewFuncTool("template", func(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
		tmpl, _ := req.Params["template"].(string)
		out := tmpl
		for k, v := range req.Params {
			if k == "template" {
				continue
			}
			out = strings.ReplaceAll(out, "{{"+k+"}}", fmt.Sprintf("%v", v))
		}
		res := toolflow.NewResult(req)
		res.Data = map[string]any{"rendered": out}
		return res, nil
	}).
		WithDescription("Render a template string by substituting parameter values").
		WithCapabilities("template", "text formatting").
		WithVersion("1.0.0").
		WithValidator(func(ctx context.Context, req *toolflow.Request) (bool, error) {
			_, ok := req.Params["template"].(string)
			return ok, nil
		})
}

// newUppercaseTool uppercases the "text" parameter.
func newUppercaseTool() toolflow.Tool {
	return toolflow.NewFuncTool("uppercase", func(ctx context.Context, req *toolflow.Request) (*toolflow.Result, error) {
		text, _ := req.Params["text"].(string)
		res := toolflow.NewResult(req)
		res.Data = map[string]any{"text": strings.ToUpper(text)}
		return res, nil
	}).
		WithDescription("Convert input text to upper case").
		WithCapabilities("text transformation", "formatting").
		WithVersion("1.0.0")
}
