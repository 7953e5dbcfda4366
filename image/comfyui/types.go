package comfyui

import (
	"log/slog"

	"diffuser/status"

	"github.com/richinsley/comfy2go/client"
)

const (
	// WorkflowFile is the ComfyUI graph inside each model directory.
	WorkflowFile = "workflow.json"
	// MetaFile holds the pipeline metadata when the workflow has no meta node.
	MetaFile = "pipeline.toml"
	// metaNodeTitle titles the workflow node whose first widget carries the TOML metadata.
	metaNodeTitle = "diffuser_meta"
	// apiGroupTitle names the workflow group whose nodes may be updated.
	apiGroupTitle = "API"
)

// Parameter names understood in the [parameters] table.
const (
	ParamNegative  = "negative"
	ParamSeed      = "seed"
	ParamSteps     = "steps"
	ParamCfg       = "cfg"
	ParamScheduler = "scheduler"
	ParamBatch     = "batch"
)

// PipelineMeta describes where generation parameters go in a workflow.
type PipelineMeta struct {
	Name         string                    `toml:"name"`
	Description  string                    `toml:"description"`
	PromptTarget Target                    `toml:"promptTarget"`
	Parameters   map[string]ParameterDef   `toml:"parameters"`
	Hardcoded    map[string]HardcodedValue `toml:"hardcoded"`
}

// ParameterDef lists the widgets a generation parameter is written to.
type ParameterDef struct {
	Description string   `toml:"description"`
	Targets     []Target `toml:"targets"`
}

// HardcodedValue defines a value to be set directly in the workflow.
type HardcodedValue struct {
	Value   interface{} `toml:"value"`
	Targets []Target    `toml:"targets"`
}

// Target defines a specific widget in a ComfyUI workflow to update.
type Target struct {
	Node        string `toml:"node"`
	WidgetIndex int    `toml:"widget_index"`
}

// Pipeline runs a model's workflow on a ComfyUI server.
type Pipeline struct {
	log          *slog.Logger
	workflowFile string
	meta         *PipelineMeta
	client       *client.ComfyClient
	server       *status.Client
	reduceMemory bool
}
