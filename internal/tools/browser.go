package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/bridge"
	"github.com/loayabdalslam/NeuroOS-sub000/internal/domain"
)

const (
	defaultWaitForMS = 5000
	maxSurfaceWaitMS = 30000
	// slack added on top of waits performed inside the surface
	surfaceSlack = 5 * time.Second
)

// BrowserTools returns the tools executed by the browsing surface.
func BrowserTools() []Tool {
	return []Tool{
		{
			Name:        "browser_navigate",
			Description: "Open a URL in the browser window.",
			Params: map[string]Param{
				"url":           {Type: "string", Required: true},
				"wait_for_load": {Type: "boolean", Description: "wait until the page finished loading"},
			},
			Handler: browserNavigate,
		},
		{
			Name:        "browser_scrape",
			Description: "Extract content from the current page.",
			Params: map[string]Param{
				"mode":      {Type: "string", Description: "summary (default), html, links or metadata"},
				"selector":  {Type: "string", Description: "limit extraction to this element"},
				"max_chars": {Type: "number"},
			},
			Handler: browserScrape,
		},
		{
			Name:        "browser_click",
			Description: "Click an element by CSS selector, by visible text, or at x/y coordinates.",
			Params: map[string]Param{
				"selector": {Type: "string"},
				"text":     {Type: "string"},
				"x":        {Type: "number"},
				"y":        {Type: "number"},
			},
			Handler: browserClick,
		},
		{
			Name:        "browser_type",
			Description: "Type text into an input field.",
			Params: map[string]Param{
				"selector": {Type: "string", Required: true},
				"text":     {Type: "string", Required: true},
				"clear":    {Type: "boolean", Description: "clear the field first"},
			},
			Handler: browserType,
		},
		{
			Name:        "browser_submit",
			Description: "Submit a form.",
			Params: map[string]Param{
				"selector": {Type: "string", Description: "form or an element inside it"},
			},
			Handler: browserSubmit,
		},
		{
			Name:        "browser_key",
			Description: "Press a key, optionally on a specific element.",
			Params: map[string]Param{
				"key":      {Type: "string", Required: true, Description: "e.g. Enter, Escape, ArrowDown"},
				"selector": {Type: "string"},
			},
			Handler: browserKey,
		},
		{
			Name:        "browser_scroll",
			Description: "Scroll the page by an offset or to an element.",
			Params: map[string]Param{
				"dx":       {Type: "number"},
				"dy":       {Type: "number"},
				"selector": {Type: "string"},
			},
			Handler: browserScroll,
		},
		{
			Name:        "browser_eval",
			Description: "Run JavaScript in the page and return its value.",
			Params: map[string]Param{
				"script": {Type: "string", Required: true},
			},
			Handler: browserEval,
		},
		{
			Name:        "browser_wait_for",
			Description: "Wait until a selector appears on the page.",
			Params: map[string]Param{
				"selector":   {Type: "string", Required: true},
				"timeout_ms": {Type: "number"},
			},
			Handler: browserWaitFor,
		},
		{
			Name:        "browser_wait",
			Description: "Let the page settle for a number of milliseconds.",
			Params: map[string]Param{
				"ms": {Type: "number", Required: true},
			},
			Handler: browserWait,
		},
	}
}

// sendAction forwards an action to the surface and maps the outcome.
func sendAction(ctx context.Context, caps *Capabilities, actionType string, payload any, timeout time.Duration, okMsg string) domain.ToolResult {
	if caps == nil || caps.Browser == nil {
		return domain.Fail(bridge.ErrNoSurface.Error())
	}
	out := caps.Browser.Call(ctx, actionType, payload, timeout)
	switch {
	case out.Success:
		return domain.OK(okMsg, out.Data)
	case out.TimedOut:
		return domain.ToolResult{Success: false, Message: "Browser action timed out: " + out.Error, Data: map[string]bool{"timedOut": true}}
	default:
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return domain.Fail(fmt.Sprintf("Browser action %s failed: %s", actionType, msg))
	}
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return u.String(), nil
}

func browserNavigate(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	raw, err := StringArg(args, "url")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	target, err := normalizeURL(raw)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	waitForLoad, err := BoolArg(args, "wait_for_load", false)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	action := bridge.ActionNavigate
	if waitForLoad {
		action = bridge.ActionNavigateAndWait
	}
	return sendAction(ctx, caps, action, bridge.NavigatePayload{URL: target}, 0, "Navigated to "+target), nil
}

var scrapeModes = map[string]string{
	"summary":  bridge.ActionScrapeSummary,
	"html":     bridge.ActionScrapeHTML,
	"links":    bridge.ActionScrapeLinks,
	"metadata": bridge.ActionScrapeMetadata,
}

func browserScrape(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	mode, err := OptString(args, "mode", "summary")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	action, ok := scrapeModes[strings.ToLower(mode)]
	if !ok {
		return domain.Fail(fmt.Sprintf("unknown scrape mode %q (use summary, html, links or metadata)", mode)), nil
	}
	selector, err := OptString(args, "selector", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	maxChars, err := OptInt(args, "max_chars", 0)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	payload := bridge.ScrapePayload{Selector: selector, MaxChars: maxChars}
	return sendAction(ctx, caps, action, payload, 0, "Scraped page ("+mode+")"), nil
}

func browserClick(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	var p bridge.ClickPayload
	var err error
	if p.Selector, err = OptString(args, "selector", ""); err != nil {
		return domain.Fail(err.Error()), nil
	}
	if p.Text, err = OptString(args, "text", ""); err != nil {
		return domain.Fail(err.Error()), nil
	}
	if p.X, err = OptFloat(args, "x"); err != nil {
		return domain.Fail(err.Error()), nil
	}
	if p.Y, err = OptFloat(args, "y"); err != nil {
		return domain.Fail(err.Error()), nil
	}
	hasPoint := p.X != nil && p.Y != nil
	if p.Selector == "" && p.Text == "" && !hasPoint {
		return domain.Fail("browser_click needs a selector, a text, or both x and y"), nil
	}
	return sendAction(ctx, caps, bridge.ActionClick, p, 0, "Clicked"), nil
}

func browserType(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	selector, err := StringArg(args, "selector")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	text, err := RawString(args, "text")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	clearFirst, err := BoolArg(args, "clear", false)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	p := bridge.TypePayload{Selector: selector, Text: text, Clear: clearFirst}
	return sendAction(ctx, caps, bridge.ActionType, p, 0, fmt.Sprintf("Typed %d characters into %s", len(text), selector)), nil
}

func browserSubmit(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	selector, err := OptString(args, "selector", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	return sendAction(ctx, caps, bridge.ActionSubmit, bridge.SubmitPayload{Selector: selector}, 0, "Submitted form"), nil
}

func browserKey(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	key, err := StringArg(args, "key")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	selector, err := OptString(args, "selector", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	return sendAction(ctx, caps, bridge.ActionKey, bridge.KeyPayload{Key: key, Selector: selector}, 0, "Pressed "+key), nil
}

func browserScroll(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	dx, err := OptInt(args, "dx", 0)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	dy, err := OptInt(args, "dy", 0)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	selector, err := OptString(args, "selector", "")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	if dx == 0 && dy == 0 && selector == "" {
		dy = 600
	}
	p := bridge.ScrollPayload{DX: dx, DY: dy, Selector: selector}
	return sendAction(ctx, caps, bridge.ActionScroll, p, 0, "Scrolled"), nil
}

func browserEval(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	script, err := StringArg(args, "script")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	return sendAction(ctx, caps, bridge.ActionEval, bridge.EvalPayload{Script: script}, 0, "Script evaluated"), nil
}

func browserWaitFor(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	selector, err := StringArg(args, "selector")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	timeoutMS, err := OptInt(args, "timeout_ms", defaultWaitForMS)
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	timeoutMS = min(max(timeoutMS, 0), maxSurfaceWaitMS)
	p := bridge.WaitForPayload{Selector: selector, TimeoutMS: timeoutMS}
	timeout := time.Duration(timeoutMS)*time.Millisecond + surfaceSlack
	return sendAction(ctx, caps, bridge.ActionWaitFor, p, timeout, selector+" appeared"), nil
}

func browserWait(ctx context.Context, args map[string]any, caps *Capabilities) (domain.ToolResult, error) {
	ms, err := IntArg(args, "ms")
	if err != nil {
		return domain.Fail(err.Error()), nil
	}
	ms = min(max(ms, 0), maxSurfaceWaitMS)
	timeout := time.Duration(ms)*time.Millisecond + surfaceSlack
	return sendAction(ctx, caps, bridge.ActionWait, bridge.WaitPayload{MS: ms}, timeout, fmt.Sprintf("Waited %dms", ms)), nil
}
