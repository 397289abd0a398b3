// Package verify classifies pause, loss and corruption of the workloads
// against the realized window of a fault.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/sampler"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/retry"
	"github.com/litmuschaos/stretch-dr-go/pkg/workloads"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// readCompletionTimeout bounds the wait for reader jobs to complete, in seconds
	readCompletionTimeout = 900
	corruptMarker         = "corrupt"
	logReaderPath         = "/opt/logreader.py"
)

func activeFault(s *session.Session) (types.FaultKind, string) {
	kind, split, _ := s.ActiveFault()
	return kind, split
}

// CheckForWritePause reads every artifact of the writer instance and reports
// a pause when any of them has no marker inside the window. Exec failures the
// tolerance table expects for the active fault produce a skipped record.
func CheckForWritePause(ctx context.Context, s *session.Session, inst types.WorkloadInstance, artifacts []string, w types.ObservationWindow) (types.OutcomeRecord, error) {
	kind, split := activeFault(s)
	names := append([]string(nil), artifacts...)
	sort.Strings(names)
	for _, artifact := range names {
		text, err := workloads.ReadArtifact(ctx, s, inst, artifact)
		if err != nil {
			if s.Tolerance.ExecErrorTolerated(kind, split, err) {
				log.Warnf("[Verify]: Skipping the write pause check of %v, err: %v", inst.Name, err)
				return types.SkippedOutcome(inst.Name, kind, types.Pause, err.Error()), nil
			}
			return types.OutcomeRecord{}, stacktrace.Propagate(err, "%s pod failed to exec command", inst.Name)
		}
		markers, err := sampler.ParseMarkers(text)
		if err != nil {
			return types.OutcomeRecord{}, stacktrace.Propagate(err, "could not parse %s of %s", artifact, inst.Name)
		}
		if gap := sampler.FindGap(markers, w); gap != nil {
			return types.NewOutcome(inst.Name, kind, types.Pause, true, fmt.Sprintf("%s: %s", artifact, gap)), nil
		}
	}
	return types.NewOutcome(inst.Name, kind, types.Pause, false, ""), nil
}

// WritePause classifies the writer of the protocol. Every instance gets its
// own record carrying its zone, then the label record aggregates them.
// Instances of the file-shared writer see the same volume, so the writer is
// paused only if every instance shows the pause. Block writers own their
// volume and any paused one counts.
func WritePause(ctx context.Context, s *session.Session, proto types.Protocol, w types.ObservationWindow) (types.OutcomeRecord, error) {
	kind, _ := activeFault(s)
	label := workloads.WriterLabel(proto)
	baseline, ok := s.LogFileMap(label)
	if !ok {
		return types.OutcomeRecord{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Target: fmt.Sprintf("{label: %s}", label), Reason: "no artifacts were recorded before the fault"}
	}
	instances, err := instancesOf(ctx, s, label)
	if err != nil {
		return types.OutcomeRecord{}, err
	}

	var perInstance []types.OutcomeRecord
	for _, inst := range instances {
		artifacts := allArtifacts(baseline)
		if proto == types.BlockExclusive {
			artifacts = baseline.Artifacts(inst.Name)
		}
		rec, err := CheckForWritePause(ctx, s, inst, artifacts, w)
		if err != nil {
			return types.OutcomeRecord{}, err
		}
		rec = rec.InZone(inst.Zone)
		s.AddOutcome(rec)
		logOutcome(rec, w)
		perInstance = append(perInstance, rec)
	}

	out := aggregatePause(label, kind, proto, perInstance)
	s.AddOutcome(out)
	logOutcome(out, w)
	return out, nil
}

// aggregatePause folds per instance pause records into the record of the label
func aggregatePause(label string, kind types.FaultKind, proto types.Protocol, records []types.OutcomeRecord) types.OutcomeRecord {
	var (
		checked, pausedCount int
		detail               []string
	)
	for _, rec := range records {
		if rec.Skipped() {
			detail = append(detail, rec.String())
			continue
		}
		checked++
		if rec.Value() {
			pausedCount++
			detail = append(detail, rec.String())
		}
	}
	if checked == 0 {
		return types.SkippedOutcome(label, kind, types.Pause, strings.Join(detail, "; "))
	}
	paused := pausedCount > 0
	if proto == types.FileShared {
		paused = pausedCount == checked
	}
	return types.NewOutcome(label, kind, types.Pause, paused, strings.Join(detail, "; "))
}

// CheckForReadPause scans the logs of the reader instances, any instance
// without a marker inside the window is a pause
func CheckForReadPause(ctx context.Context, s *session.Session, instances []types.WorkloadInstance, w types.ObservationWindow) (types.OutcomeRecord, error) {
	kind, split := activeFault(s)
	label := types.LogReaderCephFSLabel
	var (
		checked int
		detail  []string
		paused  bool
	)
	for _, inst := range instances {
		logs, err := podLogs(ctx, s, inst)
		if err != nil {
			if s.Tolerance.ExecErrorTolerated(kind, split, err) {
				detail = append(detail, fmt.Sprintf("%s skipped: %v", inst.Name, err))
				continue
			}
			return types.OutcomeRecord{}, err
		}
		markers, err := sampler.ParseMarkers(logs)
		if err != nil {
			return types.OutcomeRecord{}, stacktrace.Propagate(err, "could not parse the logs of %s", inst.Name)
		}
		checked++
		if gap := sampler.FindGap(markers, w); gap != nil {
			paused = true
			detail = append(detail, fmt.Sprintf("%s: %s", inst.Name, gap))
		}
	}

	var out types.OutcomeRecord
	if checked == 0 {
		out = types.SkippedOutcome(label, kind, types.Pause, strings.Join(detail, "; "))
	} else {
		out = types.NewOutcome(label, kind, types.Pause, paused, strings.Join(detail, "; "))
	}
	s.AddOutcome(out)
	logOutcome(out, w)
	return out, nil
}

// CheckForDataLoss re-lists the artifacts of the writer label and reports a
// loss when any artifact recorded before the fault is gone
func CheckForDataLoss(ctx context.Context, s *session.Session, label string) (types.OutcomeRecord, error) {
	kind, _ := activeFault(s)
	baseline, ok := s.LogFileMap(label)
	if !ok {
		return types.OutcomeRecord{}, cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Target: fmt.Sprintf("{label: %s}", label), Reason: "no artifacts were recorded before the fault"}
	}
	instances, err := workloads.GetInstances(ctx, s, label, 0, types.StatusRunning)
	if err != nil {
		return types.OutcomeRecord{}, err
	}
	if len(instances) == 0 {
		return types.OutcomeRecord{}, cerrors.WorkloadStatusChecks{Target: label, Reason: "no running writer instance"}
	}

	var missing []string
	if label == types.LogWriterRBDLabel {
		byName := map[string]types.WorkloadInstance{}
		for _, inst := range instances {
			byName[inst.Name] = inst
		}
		for name := range baseline {
			inst, ok := byName[name]
			if !ok {
				for _, a := range baseline.Artifacts(name) {
					missing = append(missing, name+"/"+a)
				}
				continue
			}
			current, err := listArtifacts(ctx, s, inst)
			if err != nil {
				return types.OutcomeRecord{}, err
			}
			for _, a := range subtract(baseline.Artifacts(name), current) {
				missing = append(missing, name+"/"+a)
			}
		}
	} else {
		current, err := listArtifacts(ctx, s, instances[0])
		if err != nil {
			return types.OutcomeRecord{}, err
		}
		missing = subtract(allArtifacts(baseline), current)
	}
	sort.Strings(missing)

	detail := ""
	if len(missing) != 0 {
		detail = "missing " + strings.Join(missing, ",")
	}
	out := types.NewOutcome(label, kind, types.Loss, len(missing) != 0, detail)
	s.AddOutcome(out)
	logOutcome(out, types.ObservationWindow{})
	return out, nil
}

// CheckForDataCorruption validates the written data. The file-shared volume is
// validated by a fresh reader job, block volumes by the reader inside each writer.
func CheckForDataCorruption(ctx context.Context, s *session.Session, proto types.Protocol) (types.OutcomeRecord, error) {
	kind, _ := activeFault(s)
	var (
		label   string
		corrupt []string
		err     error
	)
	if proto == types.FileShared {
		label = types.LogReaderCephFSLabel
		corrupt, err = readerCorruption(ctx, s)
	} else {
		label = types.LogWriterRBDLabel
		corrupt, err = writerCorruption(ctx, s)
	}
	if err != nil {
		return types.OutcomeRecord{}, err
	}

	detail := ""
	if len(corrupt) != 0 {
		detail = "corruption reported by " + strings.Join(corrupt, ",")
	}
	out := types.NewOutcome(label, kind, types.Corruption, len(corrupt) != 0, detail)
	s.AddOutcome(out)
	logOutcome(out, types.ObservationWindow{})
	return out, nil
}

// RotateReader replaces the reader job with a fresh one over the writer claim
// and waits for it to complete
func RotateReader(ctx context.Context, s *session.Session) ([]types.WorkloadInstance, error) {
	if err := workloads.DeleteReader(ctx, s); err != nil {
		return nil, err
	}
	claim, err := workloads.WriterClaim(ctx, s)
	if err != nil {
		return nil, err
	}
	readers, err := workloads.StartReader(ctx, s, claim, s.Details.LogReaderDuration)
	if err != nil {
		return nil, err
	}
	if err := workloads.WaitForStatuses(ctx, s, readers, []types.InstanceStatus{types.StatusCompleted}, readCompletionTimeout); err != nil {
		return nil, stacktrace.Propagate(err, "logreader job pods did not complete")
	}
	log.Info("[Verify]: Logreader job pods have reached 'Completed' state")
	return readers, nil
}

func readerCorruption(ctx context.Context, s *session.Session) ([]string, error) {
	readers, err := RotateReader(ctx, s)
	if err != nil {
		return nil, err
	}
	var corrupt []string
	for _, inst := range readers {
		logs, err := podLogs(ctx, s, inst)
		if err != nil {
			return nil, err
		}
		if strings.Contains(logs, corruptMarker) {
			corrupt = append(corrupt, inst.Name)
		}
	}
	return corrupt, nil
}

func writerCorruption(ctx context.Context, s *session.Session) ([]string, error) {
	baseline, ok := s.LogFileMap(types.LogWriterRBDLabel)
	if !ok {
		return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeUnexpectedBehaviour, Target: fmt.Sprintf("{label: %s}", types.LogWriterRBDLabel), Reason: "no artifacts were recorded before the fault"}
	}
	instances, err := workloads.GetInstances(ctx, s, types.LogWriterRBDLabel, 0, types.StatusRunning)
	if err != nil {
		return nil, err
	}
	var corrupt []string
	for _, inst := range instances {
		artifacts := baseline.Artifacts(inst.Name)
		if len(artifacts) == 0 {
			continue
		}
		sort.Strings(artifacts)
		command := []string{logReaderPath, "-t", strconv.Itoa(s.Details.LogReaderDuration), artifacts[0], "-d"}
		out, err := s.Executor.Exec(ctx, exec.PodDetails{PodName: inst.Name, Namespace: inst.Namespace, ContainerName: inst.Container}, command)
		if err != nil {
			return nil, stacktrace.Propagate(err, "could not run the logreader in %s", inst.Name)
		}
		if strings.Contains(out, corruptMarker) {
			corrupt = append(corrupt, inst.Name)
		}
	}
	return corrupt, nil
}

// PostFailureChecks classifies read and write pauses of every workload with a
// recorded baseline. Reader jobs are awaited first when asked to.
func PostFailureChecks(ctx context.Context, s *session.Session, w types.ObservationWindow, waitForReadCompletion bool) error {
	log.Infof("[Verify]: Running the post failure checks for window %v", w)
	if _, ok := s.LogFileMap(types.LogWriterCephFSLabel); ok {
		readers, err := instancesOf(ctx, s, types.LogReaderCephFSLabel)
		if err != nil {
			return err
		}
		if waitForReadCompletion && len(readers) != 0 {
			kind, split := activeFault(s)
			expected := append([]types.InstanceStatus{types.StatusCompleted}, s.Tolerance.Statuses(kind, split)...)
			if err := workloads.WaitForStatuses(ctx, s, readers, expected, readCompletionTimeout); err != nil {
				return stacktrace.Propagate(err, "logreader job pods did not finish")
			}
		}
		if len(readers) != 0 {
			if _, err := CheckForReadPause(ctx, s, readers, w); err != nil {
				return err
			}
		}
		if _, err := WritePause(ctx, s, types.FileShared, w); err != nil {
			return err
		}
	}
	if _, ok := s.LogFileMap(types.LogWriterRBDLabel); ok {
		if _, err := WritePause(ctx, s, types.BlockExclusive, w); err != nil {
			return err
		}
	}
	return nil
}

func instancesOf(ctx context.Context, s *session.Session, label string) ([]types.WorkloadInstance, error) {
	if instances := s.Workloads(label); len(instances) != 0 {
		return instances, nil
	}
	return workloads.GetInstances(ctx, s, label, 0)
}

func listArtifacts(ctx context.Context, s *session.Session, inst types.WorkloadInstance) ([]string, error) {
	var names []string
	err := retry.
		Times(4).
		Wait(5 * time.Second).
		On(cerrors.IsTransient).
		Clock(s.Clock).
		TryWithContext(ctx, func(attempt uint) error {
			var err error
			names, err = workloads.ListArtifacts(ctx, s, inst)
			return err
		})
	return names, err
}

func podLogs(ctx context.Context, s *session.Session, inst types.WorkloadInstance) (string, error) {
	pod, err := s.Clients.KubeClient.CoreV1().Pods(inst.Namespace).Get(ctx, inst.Name, metav1.GetOptions{})
	if err != nil {
		return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: fmt.Sprintf("{podName: %s}", inst.Name), Reason: err.Error()}
	}
	logs, err := s.Clients.GetPodLogs(ctx, inst.Namespace, pod)
	if err != nil {
		return "", cerrors.Error{ErrorCode: cerrors.ErrorTypeCommandFailed, Target: fmt.Sprintf("{podName: %s}", inst.Name), Reason: err.Error()}
	}
	return logs, nil
}

func allArtifacts(m types.LogFileMap) []string {
	seen := map[string]struct{}{}
	var names []string
	for instance := range m {
		for _, a := range m.Artifacts(instance) {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				names = append(names, a)
			}
		}
	}
	sort.Strings(names)
	return names
}

// subtract returns the names of want which are not in have
func subtract(want, have []string) []string {
	present := map[string]struct{}{}
	for _, h := range have {
		present[h] = struct{}{}
	}
	var out []string
	for _, w := range want {
		if _, ok := present[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}

func logOutcome(o types.OutcomeRecord, w types.ObservationWindow) {
	fields := logrus.Fields{
		"Subject": o.Subject(),
		"Kind":    o.Kind(),
		"Fault":   o.Fault(),
		"Value":   o.Value(),
		"Skipped": o.Skipped(),
	}
	if !w.Start.IsZero() {
		fields["Window"] = w.String()
		fields["WindowDuration"] = w.Duration().String()
	}
	if o.Zone() != "" {
		fields["Zone"] = o.Zone()
	}
	if o.Detail() != "" {
		fields["Detail"] = o.Detail()
	}
	log.InfoWithValues("[Verify]: Outcome recorded", fields)
}
