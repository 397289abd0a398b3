package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/litmuschaos/stretch-dr-go/pkg/cerrors"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/util/retry"
)

// DeleteConfigMap deletes the specified configmap
func DeleteConfigMap(ctx context.Context, configMapName, namespace string, clients clients.ClientSets) error {
	if err := clients.KubeClient.CoreV1().ConfigMaps(namespace).Delete(ctx, configMapName, v1.DeleteOptions{}); err != nil && !k8serrors.IsNotFound(err) {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeGeneric, Target: fmt.Sprintf("{configMapName: %s, namespace: %s}", configMapName, namespace), Reason: fmt.Sprintf("failed to delete configmap: %s", err.Error())}
	}
	return nil
}

// ApplyConfigMap creates the configmap with the given literal keys, or replaces
// the data of an existing one
func ApplyConfigMap(ctx context.Context, name, namespace string, labels, data map[string]string, clients clients.ClientSets) error {
	configMap := &corev1.ConfigMap{
		ObjectMeta: v1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Data:       map[string]string{},
	}
	for key, value := range data {
		if err := addKeyFromLiteralToConfigMap(configMap, key, value); err != nil {
			return cerrors.Error{ErrorCode: cerrors.ErrorTypeResultCRUD, Target: fmt.Sprintf("{configMapName: %s}", name), Reason: err.Error()}
		}
	}

	cms := clients.KubeClient.CoreV1().ConfigMaps(namespace)
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := cms.Get(ctx, name, v1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = cms.Create(ctx, configMap, v1.CreateOptions{})
			return err
		}
		if err != nil {
			return err
		}
		existing.Labels = labels
		existing.Data = configMap.Data
		_, err = cms.Update(ctx, existing, v1.UpdateOptions{})
		return err
	})
	if err != nil {
		return cerrors.Error{ErrorCode: cerrors.ErrorTypeResultCRUD, Target: fmt.Sprintf("{configMapName: %s, namespace: %s}", name, namespace), Reason: fmt.Sprintf("unable to apply configmap: %s", err.Error())}
	}
	return nil
}

func addKeyFromLiteralToConfigMap(configMap *corev1.ConfigMap, keyName, data string) error {
	err := validateNewConfigMap(configMap, keyName)
	if err != nil {
		return err
	}
	configMap.Data[keyName] = data

	return nil
}

func validateNewConfigMap(configMap *corev1.ConfigMap, keyName string) error {
	if errs := validation.IsConfigMapKey(keyName); len(errs) > 0 {
		return fmt.Errorf("%q is not a valid key name for a ConfigMap: %s", keyName, strings.Join(errs, ","))
	}
	if _, exists := configMap.Data[keyName]; exists {
		return fmt.Errorf("cannot add key %q, another key by that name already exists in Data for ConfigMap %q", keyName, configMap.Name)
	}
	return nil
}
