package workloads

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	LogWriterCephFSName = "logwriter-cephfs"
	LogReaderCephFSName = "logreader-cephfs"
	LogWriterRBDName    = "logwriter-rbd"

	WriterContainer = "logwriter"
	ReaderContainer = "logreader"
	MountPath       = "/mnt/target"
	ReaderScript    = "/opt/logreader.py"
	WriterScript    = "/opt/logwriter.py"

	cephFSReplicas = 4
	rbdReplicas    = 2
	readerPods     = 4
)

func int32Ptr(i int32) *int32 { return &i }

// zoneAffinity keeps pods inside the data zones and spreads them evenly across them
func zoneAffinity(zoneLabel string, dataZones []string, app string) (*corev1.Affinity, []corev1.TopologySpreadConstraint) {
	affinity := &corev1.Affinity{
		NodeAffinity: &corev1.NodeAffinity{
			RequiredDuringSchedulingIgnoredDuringExecution: &corev1.NodeSelector{
				NodeSelectorTerms: []corev1.NodeSelectorTerm{{
					MatchExpressions: []corev1.NodeSelectorRequirement{{
						Key:      zoneLabel,
						Operator: corev1.NodeSelectorOpIn,
						Values:   dataZones,
					}},
				}},
			},
		},
	}
	spread := []corev1.TopologySpreadConstraint{{
		MaxSkew:           1,
		TopologyKey:       zoneLabel,
		WhenUnsatisfiable: corev1.DoNotSchedule,
		LabelSelector:     &metav1.LabelSelector{MatchLabels: map[string]string{"app": app}},
	}}
	return affinity, spread
}

func writerContainer(image string) corev1.Container {
	return corev1.Container{
		Name:            WriterContainer,
		Image:           image,
		ImagePullPolicy: corev1.PullIfNotPresent,
		WorkingDir:      MountPath,
		Command:         []string{WriterScript},
		Args:            []string{"-d", MountPath},
		VolumeMounts:    []corev1.VolumeMount{{Name: "logwriter-volume", MountPath: MountPath}},
	}
}

// CephFSClaim is the shared RWX volume of the CephFS writers and readers
func CephFSClaim(namespace, storageClass string) *corev1.PersistentVolumeClaim {
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: LogWriterCephFSName, Namespace: namespace},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteMany},
			StorageClassName: &storageClass,
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("10Gi")},
			},
		},
	}
}

// CephFSWriterDeployment runs the CephFS writers on one shared volume
func CephFSWriterDeployment(namespace, image, claim, zoneLabel string, dataZones []string, zoneAware bool) *appsv1.Deployment {
	labels := map[string]string{"app": LogWriterCephFSName}
	spec := corev1.PodSpec{
		Containers: []corev1.Container{writerContainer(image)},
		Volumes: []corev1.Volume{{
			Name: "logwriter-volume",
			VolumeSource: corev1.VolumeSource{
				PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
			},
		}},
	}
	if zoneAware {
		spec.Affinity, spec.TopologySpreadConstraints = zoneAffinity(zoneLabel, dataZones, LogWriterCephFSName)
	}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: LogWriterCephFSName, Namespace: namespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(cephFSReplicas),
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       spec,
			},
		},
	}
}

// RBDWriterStatefulSet runs RBD writers, each on its own RWO volume
func RBDWriterStatefulSet(namespace, image, storageClass, zoneLabel string, dataZones []string, zoneAware bool) *appsv1.StatefulSet {
	labels := map[string]string{"app": LogWriterRBDName}
	spec := corev1.PodSpec{
		Containers: []corev1.Container{writerContainer(image)},
	}
	if zoneAware {
		spec.Affinity, spec.TopologySpreadConstraints = zoneAffinity(zoneLabel, dataZones, LogWriterRBDName)
	}
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: LogWriterRBDName, Namespace: namespace, Labels: labels},
		Spec: appsv1.StatefulSetSpec{
			Replicas:    int32Ptr(rbdReplicas),
			ServiceName: LogWriterRBDName,
			Selector:    &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       spec,
			},
			VolumeClaimTemplates: []corev1.PersistentVolumeClaim{{
				ObjectMeta: metav1.ObjectMeta{Name: "logwriter-volume"},
				Spec: corev1.PersistentVolumeClaimSpec{
					AccessModes:      []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
					StorageClassName: &storageClass,
					Resources: corev1.VolumeResourceRequirements{
						Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("10Gi")},
					},
				},
			}},
		},
	}
}

// ReaderCommand validates every artifact of the working directory for the given minutes
func ReaderCommand(minutes int) string {
	return fmt.Sprintf("%s -t %d *.log -d", ReaderScript, minutes)
}

// CephFSReaderJob validates the shared volume for a bounded duration
func CephFSReaderJob(namespace, image, claim string, minutes int) *batchv1.Job {
	labels := map[string]string{"app": LogReaderCephFSName}
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: LogReaderCephFSName, Namespace: namespace, Labels: labels},
		Spec: batchv1.JobSpec{
			Parallelism:  int32Ptr(readerPods),
			Completions:  int32Ptr(readerPods),
			BackoffLimit: int32Ptr(0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:         ReaderContainer,
						Image:        image,
						WorkingDir:   MountPath,
						Command:      []string{"/bin/sh", "-c", ReaderCommand(minutes)},
						VolumeMounts: []corev1.VolumeMount{{Name: "logwriter-volume", MountPath: MountPath}},
					}},
					Volumes: []corev1.Volume{{
						Name: "logwriter-volume",
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: claim},
						},
					}},
				},
			},
		},
	}
}
