package wire

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	streamSchemaURL = "https://talkback.dev/schema/stream_event.json"
	voiceSchemaURL  = "https://talkback.dev/schema/voice_event.json"
)

var (
	schemaOnce   sync.Once
	schemaErr    error
	streamSchema *jsonschema.Schema
	voiceSchema  *jsonschema.Schema
)

func compileSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		resources := []struct {
			url  string
			file string
		}{
			{streamSchemaURL, "schema/stream_event.json"},
			{voiceSchemaURL, "schema/voice_event.json"},
		}
		for _, res := range resources {
			f, err := schemaFS.Open(res.file)
			if err != nil {
				schemaErr = fmt.Errorf("open schema %s: %w", res.file, err)
				return
			}
			err = compiler.AddResource(res.url, f)
			f.Close()
			if err != nil {
				schemaErr = fmt.Errorf("add schema resource: %w", err)
				return
			}
		}
		if streamSchema, schemaErr = compiler.Compile(streamSchemaURL); schemaErr != nil {
			schemaErr = fmt.Errorf("compile stream schema: %w", schemaErr)
			return
		}
		if voiceSchema, schemaErr = compiler.Compile(voiceSchemaURL); schemaErr != nil {
			schemaErr = fmt.Errorf("compile voice schema: %w", schemaErr)
		}
	})
	return schemaErr
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type toolPayload struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Server string          `json:"server"`
	Args   json.RawMessage `json:"args"`
	Status ToolStatus      `json:"status"`
	Result ToolStatus      `json:"result"`
	TS     json.RawMessage `json:"ts"`
}

// DecodeStreamEvent decodes one inbound stream event. name is the SSE event
// name; when it is empty, data must hold a {"event","data"} envelope.
// Malformed or unknown events return a *ProtocolError.
func DecodeStreamEvent(name string, data []byte) (StreamEvent, error) {
	if err := compileSchemas(); err != nil {
		return StreamEvent{}, err
	}

	var env envelope
	if name == "" {
		if err := json.Unmarshal(data, &env); err != nil {
			return StreamEvent{}, protocolErr("malformed event envelope", err)
		}
	} else {
		env.Event = name
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			env.Data = trimmed
		}
	}

	doc := map[string]any{"event": env.Event}
	if len(env.Data) > 0 && env.Event != string(EventDone) {
		var payload any
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return StreamEvent{}, protocolErr(fmt.Sprintf("malformed %q payload", env.Event), err)
		}
		if payload != nil {
			doc["data"] = payload
		}
	}
	if err := streamSchema.Validate(doc); err != nil {
		return StreamEvent{}, protocolErr(fmt.Sprintf("invalid %q event", env.Event), err)
	}

	switch env.Event {
	case "token":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return StreamEvent{}, protocolErr("malformed token payload", err)
		}
		return Token(p.Text), nil
	case "tool", "tool_start", "tool_update", "tool_end":
		var p toolPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return StreamEvent{}, protocolErr("malformed tool payload", err)
		}
		return toolEvent(env.Event, p), nil
	case "done":
		return Done(), nil
	case "error":
		var p struct {
			Message string `json:"message"`
		}
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &p)
		}
		if p.Message == "" {
			p.Message = "stream error"
		}
		return StreamEvent{Kind: EventError, Message: p.Message}, nil
	}
	return StreamEvent{}, protocolErr(fmt.Sprintf("unknown event %q", env.Event), nil)
}

func toolEvent(event string, p toolPayload) StreamEvent {
	te := &ToolEvent{
		ID:     p.ID,
		Tool:   p.Tool,
		Server: p.Server,
		Args:   argsString(p.Args),
		At:     parseTimestamp(p.TS),
	}

	var kind EventKind
	switch event {
	case "tool_start":
		kind, te.Status = EventToolStart, ToolStatusStart
	case "tool_update":
		kind, te.Status = EventToolUpdate, p.Status
		if te.Status == "" {
			te.Status = ToolStatusOK
		}
	case "tool_end":
		kind, te.Status = EventToolEnd, terminalStatus(p.Status, p.Result)
	default:
		switch p.Status {
		case ToolStatusStart:
			kind, te.Status = EventToolStart, ToolStatusStart
		case ToolStatusEnd, ToolStatusSuccess:
			kind, te.Status = EventToolEnd, terminalStatus(p.Result, p.Status)
		default:
			kind, te.Status = EventToolUpdate, p.Status
		}
	}
	return StreamEvent{Kind: kind, Tool: te}
}

// terminalStatus picks the first recognizable terminal status, defaulting to success.
func terminalStatus(candidates ...ToolStatus) ToolStatus {
	for _, s := range candidates {
		switch s {
		case ToolStatusSuccess, ToolStatusOK:
			return ToolStatusSuccess
		case ToolStatusError:
			return ToolStatusError
		case ToolStatusCached:
			return ToolStatusCached
		}
	}
	return ToolStatusSuccess
}

func argsString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// parseTimestamp accepts unix seconds or milliseconds, or an RFC 3339 string.
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f <= 0 {
		return time.Time{}
	}
	if f < 1e11 {
		return time.UnixMilli(int64(f * 1000))
	}
	return time.UnixMilli(int64(f))
}

// DecodeVoiceEvent decodes one JSON message received on the voice channel.
func DecodeVoiceEvent(data []byte) (VoiceEvent, error) {
	if err := compileSchemas(); err != nil {
		return VoiceEvent{}, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return VoiceEvent{}, protocolErr("malformed voice event", err)
	}
	if err := voiceSchema.Validate(doc); err != nil {
		return VoiceEvent{}, protocolErr("invalid voice event", err)
	}
	var ev VoiceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return VoiceEvent{}, protocolErr("malformed voice event", err)
	}
	return ev, nil
}
