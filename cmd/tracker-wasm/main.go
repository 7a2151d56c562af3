//go:build js && wasm

// Command tracker-wasm is the visitor tracker compiled for the browser:
//
//	GOOS=js GOARCH=wasm go build -o tracker.wasm ./cmd/tracker-wasm
//
// The page sets window.siteAnalyticsConfig = {apiUrl, timeoutMs, logLevel}
// before instantiating the module. Interaction helpers are exposed on
// window.siteAnalytics, e.g. siteAnalytics.trackDownload("cv", "/cv.pdf").
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall/js"
	"time"

	"Mansoor88-6/site-analytics/internal/client"
	"Mansoor88-6/site-analytics/internal/logger"
	"Mansoor88-6/site-analytics/internal/platform"
	"Mansoor88-6/site-analytics/internal/tracker"

	"go.uber.org/zap"
)

const (
	configGlobal  = "siteAnalyticsConfig"
	exportsGlobal = "siteAnalytics"

	defaultTimeout = 5 * time.Second
)

type trackerConfig struct {
	APIURL   string
	Timeout  time.Duration
	LogLevel string
}

func main() {
	cfg := readConfig(js.Global().Get(configGlobal))

	log, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return
	}

	tab, err := platform.NewTab()
	if err != nil {
		log.Error("Failed to attach to the browser tab", zap.Error(err))
		return
	}

	api := client.NewAPIClient(cfg.APIURL, cfg.Timeout, log.Logger)
	dispatcher := tracker.NewDispatcher(api, cfg.Timeout, log.Logger)
	t := tracker.NewTracker(tab, dispatcher, log.Logger, nil)
	t.Start()

	exports := make(map[string]any)
	for name, command := range t.Commands() {
		command := command
		exports[name] = js.FuncOf(func(this js.Value, args []js.Value) any {
			command(stringArgs(args), metadataArg(args))
			return nil
		})
	}
	js.Global().Set(exportsGlobal, js.ValueOf(exports))

	log.Debug("Tracker started",
		zap.String("api_url", cfg.APIURL),
		zap.String("session_id", t.SessionID()),
		zap.String("path", t.CurrentPath()),
	)

	// The exported functions must outlive main
	select {}
}

func readConfig(v js.Value) trackerConfig {
	cfg := trackerConfig{
		APIURL:   js.Global().Get("location").Get("origin").String(),
		Timeout:  defaultTimeout,
		LogLevel: "warn",
	}
	if v.Type() != js.TypeObject {
		return cfg
	}
	if s := v.Get("apiUrl"); s.Type() == js.TypeString && s.String() != "" {
		cfg.APIURL = s.String()
	}
	if ms := v.Get("timeoutMs"); ms.Type() == js.TypeNumber && ms.Int() > 0 {
		cfg.Timeout = time.Duration(ms.Int()) * time.Millisecond
	}
	if s := v.Get("logLevel"); s.Type() == js.TypeString && s.String() != "" {
		cfg.LogLevel = s.String()
	}
	return cfg
}

// stringArgs converts the leading scalar arguments to strings
func stringArgs(args []js.Value) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch a.Type() {
		case js.TypeString:
			out = append(out, a.String())
		case js.TypeNumber, js.TypeBoolean:
			out = append(out, js.Global().Call("String", a).String())
		case js.TypeObject:
			return out
		default:
			out = append(out, "")
		}
	}
	return out
}

// metadataArg decodes the first object argument, if any
func metadataArg(args []js.Value) map[string]any {
	for _, a := range args {
		if a.Type() != js.TypeObject || a.IsNull() {
			continue
		}
		raw := js.Global().Get("JSON").Call("stringify", a).String()
		var metadata map[string]any
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return nil
		}
		return metadata
	}
	return nil
}
