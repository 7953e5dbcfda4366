package comfyui

import (
	"errors"
	"fmt"
	stdimage "image"
	"os"
	"path/filepath"
	"time"

	"diffuser/image"
	"diffuser/logger"
	"diffuser/pipeline"
	"diffuser/settings"
	"diffuser/status"

	"github.com/richinsley/comfy2go/client"
)

// NewFactory returns a pipeline factory that loads model directories as
// ComfyUI workflows served by the instance configured for the compute unit.
func NewFactory(config settings.ComfyUiConfig) pipeline.Factory {
	return func(opts pipeline.Options) (pipeline.Pipeline, error) {
		return Load(config, opts)
	}
}

// Load validates the model directory, checks that the server is up and
// initialises a client for it.
func Load(config settings.ComfyUiConfig, opts pipeline.Options) (*Pipeline, error) {
	name := filepath.Base(opts.ResourcePath)
	workflowFile := filepath.Join(opts.ResourcePath, WorkflowFile)
	if _, err := os.Stat(workflowFile); err != nil {
		return nil, fmt.Errorf("model %s has no %s: %w", name, WorkflowFile, err)
	}

	m, err := LoadMeta(opts.ResourcePath)
	if err != nil {
		return nil, err
	}

	port, ok := config.Port(opts.ComputeUnit)
	if !ok {
		return nil, errors.New("no ComfyUI ports configured")
	}
	server := status.NewClient(config.Url, port, time.Duration(config.TimeoutSeconds)*time.Second)
	if !server.IsRunning() {
		return nil, fmt.Errorf("ComfyUI is not reachable at %s", server.BaseURL)
	}

	c := client.NewComfyClient(config.Url, port, nil)
	if !c.IsInitialized() {
		if err := c.Init(); err != nil {
			return nil, fmt.Errorf("error initializing client: %w", err)
		}
	}

	log := logger.Service("comfyui").With("model", name)
	log.Info("ComfyUI pipeline ready", "server", server.BaseURL, "compute_unit", opts.ComputeUnit)
	return &Pipeline{
		log:          log,
		workflowFile: workflowFile,
		meta:         m,
		client:       c,
		server:       server,
		reduceMemory: opts.ReduceMemory,
	}, nil
}

// Generate runs the workflow once with params applied. A false return from
// onStep interrupts the server and abandons the run.
func (p *Pipeline) Generate(params pipeline.Params, onStep pipeline.StepCallback) ([]stdimage.Image, error) {
	if p.reduceMemory {
		defer func() {
			if err := p.server.Free(); err != nil {
				p.log.Error("Error freeing VRAM", "error", err)
			}
		}()
	}

	// Load a fresh graph, runs mutate its widget values
	graph, _, err := p.client.NewGraphFromJsonFile(p.workflowFile)
	if err != nil {
		return nil, fmt.Errorf("error loading graph JSON: %w", err)
	}

	updates := widgetUpdates(p.meta, params)
	for _, node := range graph.GetNodesInGroup(graph.GetGroupWithTitle(apiGroupTitle)) {
		if values, ok := node.WidgetValues.([]interface{}); ok {
			applyWidgets(p.meta, node.Title, node.Type, values, updates)
		}
	}

	item, err := p.client.QueuePrompt(graph)
	if err != nil {
		return nil, fmt.Errorf("failed to queue prompt: %w", err)
	}

	var images []stdimage.Image
	for continueLoop := true; continueLoop; {
		msg := <-item.Messages
		switch msg.Type {
		case "started":
			qm := msg.ToPromptMessageStarted()
			p.log.Debug("Start executing prompt", "prompt_id", qm.PromptID)
		case "executing":
			qm := msg.ToPromptMessageExecuting()
			p.log.Debug("Executing node", "node_id", qm.NodeID, "title", qm.Title)
		case "progress":
			qm := msg.ToPromptMessageProgress()
			if !onStep(pipeline.StepProgress{Step: int(qm.Value), StepCount: int(qm.Max)}) {
				if err := p.server.Interrupt(); err != nil {
					p.log.Warn("Failed to interrupt ComfyUI", "error", err)
				}
				return nil, nil
			}
		case "stopped":
			qm := msg.ToPromptMessageStopped()
			if qm.Exception != nil {
				return nil, fmt.Errorf("execution stopped with exception: %s: %s", qm.Exception.ExceptionType, qm.Exception.ExceptionMessage)
			}
			continueLoop = false
		case "data":
			qm := msg.ToPromptMessageData()
			for k, v := range qm.Data {
				if k != "images" {
					continue
				}
				for _, output := range v {
					data, err := p.client.GetImage(output)
					if err != nil {
						return nil, fmt.Errorf("failed to get image: %w", err)
					}
					img, err := image.Decode(*data)
					if err != nil {
						p.log.Warn("Skipping undecodable output", "file", output.Filename, "error", err)
						images = append(images, nil)
						continue
					}
					images = append(images, img)
				}
			}
		}
	}

	return images, nil
}

// Close releases the model from server memory.
func (p *Pipeline) Close() error {
	return p.server.Free()
}
