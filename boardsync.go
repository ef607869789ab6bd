// Package boardsync provides a minimal public API for embedding plan
// reconciliation in other Go programs.
//
// Most integrations should run the boardsync CLI or the HTTP service. This
// package exports only the types and constructors needed to load a plan and
// drive a reconciliation programmatically.
package boardsync

import (
	"github.com/boardsync/boardsync/internal/config"
	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/plan"
	"github.com/boardsync/boardsync/internal/reconcile"
)

// Core types for working with plans and reports
type (
	Plan      = plan.File
	IssueSpec = plan.IssueSpec
	Engine    = reconcile.Engine
	Options   = reconcile.Options
	Report    = reconcile.Report
	Outcome   = reconcile.Outcome
	Metrics   = reconcile.Metrics
	Config    = config.Config
	Client    = github.Client
)

// Failure reasons recorded on outcomes
const (
	ReasonValidation = reconcile.ReasonValidation
	ReasonGitHub     = reconcile.ReasonGitHub
	ReasonDeadline   = reconcile.ReasonDeadline
)

// LoadPlan reads a plan file (.yaml, .yml, .json, or .toml).
func LoadPlan(path string) (*Plan, error) {
	return plan.Load(path)
}

// LoadConfig resolves settings from the given file, falling back to
// .boardsync.yaml and the environment.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// NewEngine builds a reconciliation engine from resolved configuration.
func NewEngine(cfg *Config) *Engine {
	return reconcile.NewEngine(cfg.Client())
}

// NewEngineWithClient builds an engine over a caller-supplied client, for
// integrations that manage their own transport or retry policy.
func NewEngineWithClient(client *Client) *Engine {
	return reconcile.NewEngine(client)
}
