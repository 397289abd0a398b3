// Package result persists the verdict of a scenario run into a ConfigMap in
// the namespace of the workloads.
package result

import (
	"context"
	"fmt"
	"time"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/recovery"
	"github.com/litmuschaos/stretch-dr-go/pkg/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
	"github.com/palantir/stacktrace"
	"gopkg.in/yaml.v2"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type Verdict string

const (
	Awaited Verdict = "Awaited"
	Pass    Verdict = "Pass"
	Fail    Verdict = "Fail"
)

const (
	resultPrefix = "stretch-dr-result-"
	scenarioKey  = "stretch-dr/scenario"
)

// ResultDetails is for collecting all the result-related details of a run
type ResultDetails struct {
	Scenario    string
	RunID       string
	Namespace   string
	Verdict     Verdict
	FailStep    string
	ErrorCode   cerrors.ErrorType
	Outcomes    []types.OutcomeRecord
	Transitions []recovery.Transition
}

// Name of the result configmap of the scenario
func (r *ResultDetails) Name() string {
	return resultPrefix + r.Scenario
}

type outcomeEntry struct {
	Subject string `yaml:"subject"`
	Zone    string `yaml:"zone,omitempty"`
	Fault   string `yaml:"fault"`
	Kind    string `yaml:"kind"`
	Value   bool   `yaml:"value"`
	Skipped bool   `yaml:"skipped,omitempty"`
	Detail  string `yaml:"detail,omitempty"`
}

type transitionEntry struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	At   string `yaml:"at"`
}

// ChaosResult writes the current state of the result into its configmap
func ChaosResult(ctx context.Context, c clients.ClientSets, resultDetails *ResultDetails) error {
	outcomes := make([]outcomeEntry, 0, len(resultDetails.Outcomes))
	for _, o := range resultDetails.Outcomes {
		outcomes = append(outcomes, outcomeEntry{
			Subject: o.Subject(),
			Zone:    o.Zone(),
			Fault:   string(o.Fault()),
			Kind:    string(o.Kind()),
			Value:   o.Value(),
			Skipped: o.Skipped(),
			Detail:  o.Detail(),
		})
	}
	transitions := make([]transitionEntry, 0, len(resultDetails.Transitions))
	for _, t := range resultDetails.Transitions {
		transitions = append(transitions, transitionEntry{From: string(t.From), To: string(t.To), At: t.At.UTC().Format(time.RFC3339)})
	}
	outcomeData, err := yaml.Marshal(outcomes)
	if err != nil {
		return stacktrace.Propagate(err, "could not encode the outcomes")
	}
	transitionData, err := yaml.Marshal(transitions)
	if err != nil {
		return stacktrace.Propagate(err, "could not encode the transitions")
	}

	data := map[string]string{
		"scenario":    resultDetails.Scenario,
		"runID":       resultDetails.RunID,
		"verdict":     string(resultDetails.Verdict),
		"outcomes":    string(outcomeData),
		"transitions": string(transitionData),
	}
	if resultDetails.FailStep != "" {
		data["failStep"] = resultDetails.FailStep
		data["errorCode"] = string(resultDetails.ErrorCode)
	}
	labels := map[string]string{scenarioKey: resultDetails.Scenario}
	return common.ApplyConfigMap(ctx, resultDetails.Name(), resultDetails.Namespace, labels, data, c)
}

// RecordAfterFailure marks the result failed at the step and stores it
func RecordAfterFailure(ctx context.Context, c clients.ClientSets, resultDetails *ResultDetails, failStep string, err error) error {
	rootCause, code := cerrors.GetRootCauseAndErrorCode(err)
	resultDetails.Verdict = Fail
	resultDetails.FailStep = fmt.Sprintf("%s, err: %s", failStep, rootCause)
	resultDetails.ErrorCode = code
	return ChaosResult(ctx, c, resultDetails)
}

// GetVerdict reads back the verdict stored for the scenario
func GetVerdict(ctx context.Context, c clients.ClientSets, namespace, scenario string) (Verdict, string, error) {
	cm, err := c.KubeClient.CoreV1().ConfigMaps(namespace).Get(ctx, resultPrefix+scenario, metav1.GetOptions{})
	if err != nil {
		return "", "", cerrors.Error{ErrorCode: cerrors.ErrorTypeResultCRUD, Target: fmt.Sprintf("{scenario: %s}", scenario), Reason: err.Error()}
	}
	return Verdict(cm.Data["verdict"]), cm.Data["failStep"], nil
}
