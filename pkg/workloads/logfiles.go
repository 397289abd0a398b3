package workloads

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/sampler"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
)

const listArtifactsCommand = "ls -l | awk 'NR>1' | awk '{print $9}'"

func podDetails(inst types.WorkloadInstance) exec.PodDetails {
	return exec.PodDetails{PodName: inst.Name, Namespace: inst.Namespace, ContainerName: inst.Container}
}

// ListArtifacts lists the log files in the working directory of the instance
func ListArtifacts(ctx context.Context, s *session.Session, inst types.WorkloadInstance) ([]string, error) {
	out, err := exec.Shell(ctx, s.Executor, podDetails(inst), listArtifactsCommand)
	if err != nil {
		return nil, stacktrace.Propagate(err, "could not list artifacts of %s", inst.Name)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || name == "lost+found" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// ReadArtifact returns the full content of one artifact
func ReadArtifact(ctx context.Context, s *session.Session, inst types.WorkloadInstance, artifact string) (string, error) {
	out, err := exec.Shell(ctx, s.Executor, podDetails(inst), fmt.Sprintf("cat %s", artifact))
	if err != nil {
		return "", stacktrace.Propagate(err, "could not read %s on %s", artifact, inst.Name)
	}
	return out, nil
}

// ArtifactStart returns the start marker recorded in the artifact
func ArtifactStart(ctx context.Context, s *session.Session, inst types.WorkloadInstance, artifact string) (string, error) {
	out, err := exec.Shell(ctx, s.Executor, podDetails(inst), fmt.Sprintf("cat %s | grep -i started", artifact))
	if err != nil {
		return "", stacktrace.Propagate(err, "could not read the start marker of %s on %s", artifact, inst.Name)
	}
	return sampler.StartMarker(out), nil
}

// CollectLogFileMap records every artifact of the writer of the protocol together
// with its start marker. The file-shared volume is read from its first instance only.
func CollectLogFileMap(ctx context.Context, s *session.Session, proto types.Protocol) (types.LogFileMap, error) {
	label := WriterLabel(proto)
	instances := s.Workloads(label)
	if len(instances) == 0 {
		var err error
		if instances, err = GetInstances(ctx, s, label, 0, types.StatusRunning); err != nil {
			return nil, err
		}
	}
	if len(instances) == 0 {
		return nil, cerrors.WorkloadStatusChecks{Target: label, Reason: "no writer instance found"}
	}
	if proto == types.FileShared {
		instances = instances[:1]
	}

	logFiles := types.LogFileMap{}
	for _, inst := range instances {
		var entry map[string]string
		err := retry.
			Times(4).
			Wait(5 * time.Second).
			On(cerrors.IsTransient).
			Clock(s.Clock).
			TryWithContext(ctx, func(attempt uint) error {
				var err error
				entry, err = collectInstance(ctx, s, inst)
				return err
			})
		if err != nil {
			return nil, stacktrace.Propagate(err, "could not collect the artifacts of %s", inst.Name)
		}
		logFiles[inst.Name] = entry
	}

	s.SetLogFileMap(label, logFiles)
	log.Infof("[Info]: Recorded the artifacts of %d %s writer instance(s)", len(logFiles), proto)
	return logFiles, nil
}

func collectInstance(ctx context.Context, s *session.Session, inst types.WorkloadInstance) (map[string]string, error) {
	names, err := ListArtifacts(ctx, s, inst)
	if err != nil {
		return nil, err
	}
	entry := map[string]string{}
	for _, name := range names {
		start, err := ArtifactStart(ctx, s, inst, name)
		if err != nil {
			return nil, err
		}
		entry[name] = start
	}
	return entry, nil
}
