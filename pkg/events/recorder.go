package events

import (
	"fmt"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	"github.com/litmuschaos/stretch-dr-go/pkg/recovery"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/tools/record"
)

// Event reasons of a scenario run
const (
	FaultInjected = "FaultInjected"
	FaultReverted = "FaultReverted"
	Recovered     = "Recovered"
	Summary       = "Summary"
)

const component = "stretch-dr"

// Recorder is collection of resources needed to record events for a scenario run
type Recorder struct {
	EventRecorder record.EventRecorder
	EventResource runtime.Object
	broadcaster   record.EventBroadcaster
}

func generateEventRecorder(c clients.ClientSets) (record.EventBroadcaster, record.EventRecorder) {
	eventBroadcaster := record.NewBroadcaster()
	eventBroadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{Interface: c.KubeClient.CoreV1().Events("")})
	recorder := eventBroadcaster.NewRecorder(scheme.Scheme, corev1.EventSource{Component: component})
	return eventBroadcaster, recorder
}

// NewEventRecorder initializes an EventRecorder whose events are attached to the namespace of the workloads
func NewEventRecorder(c clients.ClientSets, namespace string) *Recorder {
	broadcaster, recorder := generateEventRecorder(c)
	return &Recorder{
		EventRecorder: recorder,
		EventResource: namespaceRef(namespace),
		broadcaster:   broadcaster,
	}
}

func namespaceRef(namespace string) *corev1.ObjectReference {
	return &corev1.ObjectReference{APIVersion: "v1", Kind: "Namespace", Name: namespace}
}

// FaultInjected is spawned just after a fault is injected
func (r *Recorder) FaultInjected(kind, name string, targets []string) {
	r.EventRecorder.Eventf(r.EventResource, corev1.EventTypeNormal, FaultInjected, "Injected %v fault %v on %v", kind, name, strings.Join(targets, ","))
}

// FaultReverted is spawned once a fault is undone
func (r *Recorder) FaultReverted(kind, name string) {
	r.EventRecorder.Eventf(r.EventResource, corev1.EventTypeNormal, FaultReverted, "Reverted %v fault %v", kind, name)
}

// ObserveTransition is a recovery.Machine hook spawning Recovered on the final state
func (r *Recorder) ObserveTransition(t recovery.Transition) {
	switch t.To {
	case recovery.Verified:
		r.EventRecorder.Event(r.EventResource, corev1.EventTypeNormal, Recovered, "Cluster recovered with no data loss and no corruption")
	case recovery.Failed:
		r.EventRecorder.Event(r.EventResource, corev1.EventTypeWarning, Recovered, fmt.Sprintf("Recovery failed from state %v", t.From))
	}
}

// Shutdown stops the broadcaster after the queued events are sent
func (r *Recorder) Shutdown() {
	if r.broadcaster != nil {
		r.broadcaster.Shutdown()
	}
}
