// Package structgen provides the public API for embedding the structured
// generation core. This is the stable API for external consumers.
package structgen

import (
	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/runtime"
)

// Engine is the main entry point for structured generation.
// See internal/runtime.Engine for full documentation.
type Engine = runtime.Engine

// Option is a functional option for configuring an Engine.
type Option = runtime.Option

// New creates a new Engine from config and a provider adapter.
// Example:
//
//	cfg, _ := structgen.LoadConfig("config.yaml")
//	eng, err := structgen.New(cfg, myAdapter, structgen.WithLogger(logger))
var New = runtime.New

// Configuration options
var (
	WithLogger          = runtime.WithLogger
	WithProvenanceStore = runtime.WithProvenanceStore
	WithMetricsRecorder = runtime.WithMetricsRecorder
)

// Config loading
type Config = config.Config

var (
	LoadConfig    = config.Load
	DefaultConfig = config.Default
)

// Core domain types
type (
	SchemaDescriptor = domain.SchemaDescriptor
	StageContext     = domain.StageContext
	Options          = domain.Options
	Outcome          = domain.Outcome
	GenerationPack   = domain.GenerationPack
	PromptLogEntry   = domain.PromptLogEntry
	GenerationError  = domain.GenerationError
	Tier             = domain.Tier
)

// Error codes
const (
	CodeGenerationFailed = domain.CodeGenerationFailed
	CodeValidationFailed = domain.CodeValidationFailed
	CodeCancelled        = domain.CodeCancelled
)

// Collaborator contracts the host implements or consumes.
type (
	ProviderAdapter = ports.ProviderAdapter
	InvokeRequest   = ports.InvokeRequest
	InvokeResult    = ports.InvokeResult
	ProvenanceStore = ports.ProvenanceStore
	MetricsRecorder = ports.MetricsRecorder
)
