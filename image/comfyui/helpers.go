package comfyui

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"diffuser/logger"
	"diffuser/pipeline"
	"diffuser/shared/meta"

	"github.com/BurntSushi/toml"
)

var samplerNames = map[meta.Scheduler]string{
	meta.SchedulerPNDM:               "lms",
	meta.SchedulerDPMSolverMultistep: "dpmpp_2m",
	meta.SchedulerEuler:              "euler",
	meta.SchedulerEulerAncestral:     "euler_ancestral",
	meta.SchedulerDDIM:               "ddim",
}

// SamplerName maps a scheduler to the ComfyUI KSampler name.
func SamplerName(s meta.Scheduler) string {
	if name, ok := samplerNames[s]; ok {
		return name
	}
	return samplerNames[meta.SchedulerDPMSolverMultistep]
}

// LoadMeta reads the pipeline metadata of the model in modelDir, preferring
// a meta node embedded in the workflow over a separate pipeline.toml.
func LoadMeta(modelDir string) (*PipelineMeta, error) {
	m, err := metaFromWorkflow(filepath.Join(modelDir, WorkflowFile))
	if err == nil {
		return m, nil
	}
	logger.Debug("No meta node in workflow, trying meta file", "dir", modelDir, "reason", err)

	metaPath := filepath.Join(modelDir, MetaFile)
	var fileMeta PipelineMeta
	if _, ferr := toml.DecodeFile(metaPath, &fileMeta); ferr != nil {
		return nil, fmt.Errorf("no pipeline metadata in %s: %w", modelDir, errors.Join(err, ferr))
	}
	return &fileMeta, nil
}

func metaFromWorkflow(workflowFile string) (*PipelineMeta, error) {
	// Read the workflow JSON file
	data, err := os.ReadFile(workflowFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", workflowFile, err)
	}

	// Unmarshal JSON into a generic map
	var workflowData map[string]interface{}
	if err := json.Unmarshal(data, &workflowData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow json: %w", err)
	}

	nodes, ok := workflowData["nodes"].([]interface{})
	if !ok {
		return nil, errors.New("workflow has no nodes")
	}

	var metaNode map[string]interface{}
	for _, n := range nodes {
		node, ok := n.(map[string]interface{})
		if !ok {
			continue
		}

		// older workflows keep the title under properties
		if properties, ok := node["properties"].(map[string]interface{}); ok {
			if title, ok := properties["title"].(string); ok && title == metaNodeTitle {
				metaNode = node
				break
			}
		}

		if title, ok := node["title"].(string); ok && title == metaNodeTitle {
			metaNode = node
			break
		}
	}

	if metaNode == nil {
		return nil, fmt.Errorf("workflow %s has no %s node", workflowFile, metaNodeTitle)
	}

	// Extract the TOML string from widget_values
	widgetValues, ok := metaNode["widgets_values"].([]interface{})
	if !ok || len(widgetValues) == 0 {
		return nil, fmt.Errorf("node %s has no widget_values", metaNodeTitle)
	}

	tomlString, ok := widgetValues[0].(string)
	if !ok {
		return nil, fmt.Errorf("first widget value in node %s is not a string", metaNodeTitle)
	}

	var m PipelineMeta
	if _, err := toml.Decode(tomlString, &m); err != nil {
		return nil, fmt.Errorf("failed to decode %s TOML: %w", metaNodeTitle, err)
	}
	return &m, nil
}

// widgetUpdates maps node title or type to widget index to value for one run.
func widgetUpdates(m *PipelineMeta, params pipeline.Params) map[string]map[int]interface{} {
	updates := make(map[string]map[int]interface{})
	set := func(targets []Target, value interface{}) {
		for _, target := range targets {
			if _, ok := updates[target.Node]; !ok {
				updates[target.Node] = make(map[int]interface{})
			}
			updates[target.Node][target.WidgetIndex] = value
		}
	}

	for paramName, hardcodedDef := range m.Hardcoded {
		if hardcodedDef.Value == nil {
			continue
		}
		logger.Debug("Setting hardcoded parameter", "param", paramName)
		set(hardcodedDef.Targets, hardcodedDef.Value)
	}

	values := map[string]interface{}{
		ParamNegative:  params.NegativePrompt,
		ParamSeed:      int64(params.Seed),
		ParamSteps:     int64(params.StepCount),
		ParamCfg:       params.GuidanceScale,
		ParamScheduler: SamplerName(params.Scheduler),
		ParamBatch:     int64(max(params.ImageCount, 1)),
	}
	for paramName, paramDef := range m.Parameters {
		value, known := values[paramName]
		if !known {
			logger.Warn("Unknown pipeline parameter", "param", paramName)
			continue
		}
		set(paramDef.Targets, value)
	}

	if m.PromptTarget.Node != "" {
		set([]Target{m.PromptTarget}, params.Prompt)
	}
	return updates
}

// applyWidgets writes updates into one node's widget values. The prompt is
// appended to any prompt text already baked into the workflow.
func applyWidgets(m *PipelineMeta, title, nodeType string, values []interface{}, updates map[string]map[int]interface{}) {
	nodeUpdates, ok := updates[nodeType]
	if !ok {
		nodeUpdates = updates[title]
	}

	for widgetIndex, value := range nodeUpdates {
		if widgetIndex < 0 || widgetIndex >= len(values) {
			continue
		}
		isPrompt := (title == m.PromptTarget.Node || nodeType == m.PromptTarget.Node) && widgetIndex == m.PromptTarget.WidgetIndex
		if isPrompt {
			if original, ok := values[widgetIndex].(string); ok && original != "" {
				values[widgetIndex] = original + " " + value.(string)
				continue
			}
		}
		values[widgetIndex] = value
	}
}
