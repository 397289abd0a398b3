package events

import (
	"context"
	"fmt"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	apiv1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
)

// EventDetails is for collecting all the events-related details
type EventDetails struct {
	Scenario  string
	RunID     string
	Namespace string
	Reason    string
	Message   string
	Type      string
}

func (e *EventDetails) name() string {
	return fmt.Sprintf("%s-%s-%s", e.Scenario, e.RunID, e.Reason)
}

//CreateEvents create the events
func CreateEvents(ctx context.Context, eventsDetails *EventDetails, c clients.ClientSets, clk clock.Clock) error {
	now := metav1.Time{Time: clk.Now()}
	event := &apiv1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      eventsDetails.name(),
			Namespace: eventsDetails.Namespace,
		},
		Source: apiv1.EventSource{
			Component: component,
		},
		Message:        eventsDetails.Message,
		Reason:         eventsDetails.Reason,
		Type:           eventsDetails.Type,
		Count:          1,
		FirstTimestamp: now,
		LastTimestamp:  now,
		InvolvedObject: *namespaceRef(eventsDetails.Namespace),
	}

	if _, err := c.KubeClient.CoreV1().Events(eventsDetails.Namespace).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{eventName: %s, namespace: %s}", event.Name, event.Namespace), Reason: fmt.Sprintf("failed to create event: %s", err.Error())}
	}
	return nil
}

//GenerateEvents creates the event of the run, or bumps its count when it exists
func GenerateEvents(ctx context.Context, eventsDetails *EventDetails, c clients.ClientSets, clk clock.Clock) error {
	event, err := c.KubeClient.CoreV1().Events(eventsDetails.Namespace).Get(ctx, eventsDetails.name(), metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return CreateEvents(ctx, eventsDetails, c, clk)
		}
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{eventName: %s, namespace: %s}", eventsDetails.name(), eventsDetails.Namespace), Reason: fmt.Sprintf("failed to get event: %s", err.Error())}
	}

	event.Count = event.Count + 1
	event.Message = eventsDetails.Message
	event.Type = eventsDetails.Type
	event.LastTimestamp = metav1.Time{Time: clk.Now()}
	if _, err = c.KubeClient.CoreV1().Events(eventsDetails.Namespace).Update(ctx, event, metav1.UpdateOptions{}); err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{eventName: %s, namespace: %s}", event.Name, event.Namespace), Reason: fmt.Sprintf("failed to update event: %s", err.Error())}
	}
	return nil
}
