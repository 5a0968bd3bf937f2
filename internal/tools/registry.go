// Package tools implements the permissioned tool registry: every tool
// carries a schema, a risk level and a minimum permission, and every
// invocation - allowed or denied - leaves exactly one audit record.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/zeebo/blake3"

	"github.com/sentinel-ops/sentinel/internal/types"
)

// Handler executes a tool. A returned error marks the call failed; the
// registry converts it to an in-band ToolResult error.
type Handler func(args map[string]any) (map[string]any, error)

// ToolSpec describes one registered tool.
type ToolSpec struct {
	Name               string                `json:"name"`
	Description        string                `json:"description"`
	InputSchema        map[string]any        `json:"input_schema,omitempty"`
	OutputSchema       map[string]any        `json:"output_schema,omitempty"`
	RiskLevel          types.RiskLevel       `json:"risk_level"`
	PermissionRequired types.PermissionLevel `json:"permission_required"`
	Tags               []string              `json:"tags,omitempty"`
	Version            string                `json:"version"`

	Handler Handler `json:"-"`

	compiled *jsonschema.Schema
}

// ValidateArgs runs full JSON Schema validation against the tool's
// input schema. Tools registered without a schema accept anything.
func (t *ToolSpec) ValidateArgs(args map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	// Round-trip so typed values (ints, structs) compare as JSON values.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	if err := t.compiled.Validate(v); err != nil {
		return fmt.Errorf("args for %s: %w", t.Name, err)
	}
	return nil
}

// AuditRecord is the immutable log entry for one tool invocation.
// Records are hash-chained: each record's ChainHash covers its own
// fields plus the previous record's hash, so tampering with any entry
// breaks verification of everything after it.
type AuditRecord struct {
	Timestamp        time.Time             `json:"timestamp"`
	ToolName         string                `json:"tool_name"`
	CallerPermission types.PermissionLevel `json:"caller_permission"`
	Args             map[string]any        `json:"args"`
	RiskLevel        types.RiskLevel       `json:"risk_level"`
	DryRun           bool                  `json:"dry_run"`
	Success          bool                  `json:"success"`
	Error            string                `json:"error,omitempty"`
	DurationMS       float64               `json:"duration_ms"`
	PrevHash         string                `json:"prev_hash"`
	ChainHash        string                `json:"chain_hash"`
}

// Registry is the central tool registry. All methods are safe for
// concurrent use.
type Registry struct {
	mu    sync.Mutex
	tools map[string]*ToolSpec
	order []string

	audit    []AuditRecord
	lastHash string
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]*ToolSpec{}}
}

// Register adds a tool. Duplicate names, missing handlers and invalid
// input schemas are rejected at registration so a bad tool can never
// be called.
func (r *Registry) Register(spec *ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q must have a handler", spec.Name)
	}
	if spec.Version == "" {
		spec.Version = "1.0.0"
	}
	if len(spec.InputSchema) > 0 {
		compiled, err := compileSchema(spec.Name, spec.InputSchema)
		if err != nil {
			return fmt.Errorf("tool %q: %w", spec.Name, err)
		}
		spec.compiled = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("tool %q already registered", spec.Name)
	}
	r.tools[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("inline://%s/schema.json", name)
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return compiled, nil
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) *ToolSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tools[name]
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	RiskLevel  types.RiskLevel
	Permission types.PermissionLevel
}

// List returns tools in registration order. When Permission is set,
// only tools callable at that level are returned. Listing is
// read-only: it never touches the audit log.
func (r *Registry) List(filter ListFilter) []*ToolSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if filter.RiskLevel != "" && t.RiskLevel != filter.RiskLevel {
			continue
		}
		if filter.Permission != "" && !filter.Permission.Allows(t.PermissionRequired) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Call invokes a tool. Failures are in-band: unknown tool, permission
// denial, missing required args, and handler errors all come back as a
// failed ToolResult, never a panic or Go error. Exactly one audit
// record is appended per call regardless of how the call resolves.
//
// Dry-run is a hard gate, not a hint: for any non-read-only tool the
// handler is not invoked at all and a synthetic "would execute" result
// is returned. Read-only tools run normally under dry-run.
func (r *Registry) Call(toolName string, args map[string]any, caller types.PermissionLevel, dryRun bool) types.ToolResult {
	start := time.Now()
	if args == nil {
		args = map[string]any{}
	}

	tool := r.Get(toolName)
	if tool == nil {
		errMsg := fmt.Sprintf("tool %q not found", toolName)
		r.recordAudit(toolName, caller, args, types.RiskReadOnly, dryRun, false, errMsg, 0)
		return types.ToolResult{Success: false, Error: errMsg}
	}

	if !caller.Allows(tool.PermissionRequired) {
		errMsg := fmt.Sprintf("permission denied: %q requires %s, caller has %s",
			toolName, tool.PermissionRequired, caller)
		r.recordAudit(toolName, caller, args, tool.RiskLevel, dryRun, false, errMsg, 0)
		return types.ToolResult{Success: false, Error: errMsg}
	}

	if missing := missingRequired(tool.InputSchema, args); len(missing) > 0 {
		errMsg := fmt.Sprintf("missing required fields: %v", missing)
		r.recordAudit(toolName, caller, args, tool.RiskLevel, dryRun, false, errMsg, 0)
		return types.ToolResult{Success: false, Error: errMsg}
	}

	var result types.ToolResult
	if dryRun && tool.RiskLevel != types.RiskReadOnly {
		result = types.ToolResult{
			Success: true,
			Data: map[string]any{
				"dry_run": true,
				"message": fmt.Sprintf("Would execute %s with args: %v", toolName, args),
			},
		}
	} else {
		result = execute(tool, args)
	}

	durationMS := float64(time.Since(start)) / float64(time.Millisecond)
	r.recordAudit(toolName, caller, args, tool.RiskLevel, dryRun, result.Success, result.Error, durationMS)

	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["tool_name"] = toolName
	result.Metadata["risk_level"] = string(tool.RiskLevel)
	result.Metadata["duration_ms"] = durationMS
	result.Metadata["dry_run"] = dryRun
	return result
}

// execute runs the handler with panic containment.
func execute(tool *ToolSpec, args map[string]any) (result types.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = types.ToolResult{Success: false, Error: fmt.Sprintf("tool execution failed: panic: %v", rec)}
		}
	}()
	data, err := tool.Handler(args)
	if err != nil {
		return types.ToolResult{Success: false, Error: fmt.Sprintf("tool execution failed: %v", err)}
	}
	return types.ToolResult{Success: true, Data: data}
}

// missingRequired is the shallow presence check applied on every call
// path; full schema validation is available separately via
// ValidateArgs for callers that construct arguments.
func missingRequired(schema, args map[string]any) []string {
	req, ok := schema["required"].([]any)
	if !ok {
		if reqs, ok := schema["required"].([]string); ok {
			var missing []string
			for _, f := range reqs {
				if _, present := args[f]; !present {
					missing = append(missing, f)
				}
			}
			return missing
		}
		return nil
	}
	var missing []string
	for _, f := range req {
		name, ok := f.(string)
		if !ok {
			continue
		}
		if _, present := args[name]; !present {
			missing = append(missing, name)
		}
	}
	return missing
}

// AuditLog returns a copy of the audit log in append order.
func (r *Registry) AuditLog() []AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditRecord, len(r.audit))
	copy(out, r.audit)
	return out
}

// VerifyAuditChain recomputes every record's chain hash and reports
// whether the log is intact.
func (r *Registry) VerifyAuditChain() bool {
	log := r.AuditLog()
	prev := ""
	for _, rec := range log {
		if rec.PrevHash != prev {
			return false
		}
		if chainHash(rec, prev) != rec.ChainHash {
			return false
		}
		prev = rec.ChainHash
	}
	return true
}

func (r *Registry) recordAudit(toolName string, caller types.PermissionLevel, args map[string]any, risk types.RiskLevel, dryRun, success bool, errMsg string, durationMS float64) {
	rec := AuditRecord{
		Timestamp:        time.Now(),
		ToolName:         toolName,
		CallerPermission: caller,
		Args:             args,
		RiskLevel:        risk,
		DryRun:           dryRun,
		Success:          success,
		Error:            errMsg,
		DurationMS:       durationMS,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec.PrevHash = r.lastHash
	rec.ChainHash = chainHash(rec, r.lastHash)
	r.lastHash = rec.ChainHash
	r.audit = append(r.audit, rec)
}

// chainHash hashes the record's identifying fields together with the
// previous record's hash. Args are serialized with sorted keys so the
// hash is stable across map iteration order.
func chainHash(rec AuditRecord, prev string) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%t|%t|%s|%s\n",
		prev,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.ToolName,
		rec.CallerPermission,
		rec.DryRun,
		rec.Success,
		rec.RiskLevel,
		rec.Error,
	)
	keys := make([]string, 0, len(rec.Args))
	for k := range rec.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\n", k, rec.Args[k])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
