package main

import (
	"fmt"
	"io"
	"time"

	"nubridge/internal/buildpipeline"
)

var timingLabels = map[buildpipeline.Stage]string{
	buildpipeline.StageTranslate: "translated",
	buildpipeline.StageFormat:    "formatted",
	buildpipeline.StageCheck:     "checked",
	buildpipeline.StageBuild:     "built",
}

func printStageTimings(out io.Writer, path string, timings buildpipeline.Timings) {
	if out == nil {
		return
	}
	for _, stage := range buildpipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		_, printErr := fmt.Fprintf(out, "%s: %s %.1f ms\n", path, timingLabels[stage], toMillis(timings.Duration(stage)))
		if printErr != nil {
			panic(printErr)
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
