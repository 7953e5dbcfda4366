package meta

import (
	"fmt"
	"strings"
)

// Scheduler is the sampling variant used while denoising.
type Scheduler string

const (
	SchedulerPNDM               Scheduler = "pndm"
	SchedulerDPMSolverMultistep Scheduler = "dpm-solver-multistep"
	SchedulerEuler              Scheduler = "euler"
	SchedulerEulerAncestral     Scheduler = "euler-ancestral"
	SchedulerDDIM               Scheduler = "ddim"
)

// Schedulers lists every supported scheduler in display order.
var Schedulers = []Scheduler{
	SchedulerPNDM,
	SchedulerDPMSolverMultistep,
	SchedulerEuler,
	SchedulerEulerAncestral,
	SchedulerDDIM,
}

func ParseScheduler(s string) (Scheduler, error) {
	for _, sc := range Schedulers {
		if strings.EqualFold(string(sc), s) {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scheduler %q", s)
}

// ComputeUnit selects the hardware a pipeline is loaded onto.
type ComputeUnit string

const (
	ComputeCPUOnly            ComputeUnit = "cpuOnly"
	ComputeCPUAndGPU          ComputeUnit = "cpuAndGPU"
	ComputeAll                ComputeUnit = "all"
	ComputeCPUAndNeuralEngine ComputeUnit = "cpuAndNeuralEngine"
)

var ComputeUnits = []ComputeUnit{
	ComputeCPUOnly,
	ComputeCPUAndGPU,
	ComputeAll,
	ComputeCPUAndNeuralEngine,
}

func ParseComputeUnit(s string) (ComputeUnit, error) {
	for _, cu := range ComputeUnits {
		if strings.EqualFold(string(cu), s) {
			return cu, nil
		}
	}
	return "", fmt.Errorf("unknown compute unit %q", s)
}
