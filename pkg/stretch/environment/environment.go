package environment

import (
	"strconv"

	experimentTypes "github.com/litmuschaos/stretch-dr-go/pkg/stretch/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/common"
)

//GetENV fetches all the env variables of the harness
func GetENV(experimentDetails *experimentTypes.ExperimentDetails) {
	experimentDetails.ScenarioName = common.Getenv("SCENARIO_NAME", "netsplit-cephfs")
	experimentDetails.RunID = common.Getenv("RUN_ID", common.GetRunID())
	experimentDetails.Namespace = common.Getenv("STRETCH_NAMESPACE", "namespace-sc-logwriter")
	experimentDetails.ClusterNamespace = common.Getenv("CLUSTER_NAMESPACE", "openshift-storage")
	experimentDetails.ZoneLabel = common.Getenv("ZONE_LABEL", "topology.kubernetes.io/zone")
	experimentDetails.ArbiterZone = common.Getenv("ARBITER_ZONE", "arbiter")
	experimentDetails.DataZones = common.SplitList(common.Getenv("DATA_ZONES", "data-1,data-2"))
	experimentDetails.NetsplitZones = common.Getenv("NETSPLIT_ZONES", "bc")
	experimentDetails.ChaosDuration, _ = strconv.Atoi(common.Getenv("TOTAL_CHAOS_DURATION", "15"))
	experimentDetails.NetsplitLeadTime, _ = strconv.Atoi(common.Getenv("NETSPLIT_LEAD_TIME", "5"))
	experimentDetails.NetsplitMargin, _ = strconv.Atoi(common.Getenv("NETSPLIT_MARGIN", "5"))
	experimentDetails.DaemonSettleTime, _ = strconv.Atoi(common.Getenv("DAEMON_SETTLE_TIME", "600"))
	experimentDetails.RelocationBuffer, _ = strconv.Atoi(common.Getenv("RELOCATION_BUFFER", "600"))
	experimentDetails.Timeout, _ = strconv.Atoi(common.Getenv("STATUS_CHECK_TIMEOUT", "900"))
	experimentDetails.Delay, _ = strconv.Atoi(common.Getenv("STATUS_CHECK_DELAY", "15"))
	experimentDetails.HealthCheckTries, _ = strconv.Atoi(common.Getenv("HEALTH_CHECK_TRIES", "50"))
	experimentDetails.NodeWaitTries, _ = strconv.Atoi(common.Getenv("NODE_WAIT_TRIES", "30"))
	experimentDetails.NodeWaitDelay, _ = strconv.Atoi(common.Getenv("NODE_WAIT_DELAY", "15"))
	experimentDetails.Fencing, _ = strconv.ParseBool(common.Getenv("FENCING", "true"))
	experimentDetails.ResourceKind = common.Getenv("RESOURCE_KIND", "osd")
	experimentDetails.ResourceDeletes, _ = strconv.Atoi(common.Getenv("RESOURCE_DELETE_COUNT", "3"))
	experimentDetails.LogWriterImage = common.Getenv("LOGWRITER_IMAGE", "quay.io/ocsci/logwriter:latest")
	experimentDetails.LogReaderDuration, _ = strconv.Atoi(common.Getenv("LOGREADER_DURATION", "5"))
	experimentDetails.CephFSStorage = common.Getenv("CEPHFS_STORAGECLASS", "ocs-storagecluster-cephfs")
	experimentDetails.RBDStorage = common.Getenv("RBD_STORAGECLASS", "ocs-storagecluster-ceph-rbd")
	experimentDetails.HelperImage = common.Getenv("LIB_IMAGE", "litmuschaos/go-runner:latest")
	experimentDetails.ToolboxLabel = common.Getenv("TOOLBOX_LABEL", "app=rook-ceph-tools")
	experimentDetails.Region = common.Getenv("AWS_REGION", "us-east-1")
	experimentDetails.S3Endpoint = common.Getenv("S3_ENDPOINT", "")
	experimentDetails.BucketCount, _ = strconv.Atoi(common.Getenv("S3_BUCKET_COUNT", "5"))
	experimentDetails.PoolWorkers, _ = strconv.Atoi(common.Getenv("POOL_WORKERS", "5"))
	experimentDetails.OTelEndpoint = common.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	experimentDetails.Pushgateway = common.Getenv("METRICS_PUSHGATEWAY", "")
	experimentDetails.ToleranceConfig = common.Getenv("TOLERANCE_CONFIG", "")
	experimentDetails.LogLevel = common.Getenv("LOG_LEVEL", "info")
}
