package result

const (
	BaselineCollection    = "[pre-chaos]: failed to collect the baseline"
	WorkloadDeployment    = "[pre-chaos]: failed to deploy the workloads"
	PreChaosHealthCheck   = "[pre-chaos]: failed in ceph health checks"
	FaultInjection        = "[chaos]: failed to inject the fault"
	FaultRevert           = "[chaos]: failed to revert the fault"
	WorkloadRelocation    = "[chaos]: workloads did not relocate"
	PostFailureChecks     = "[post-chaos]: failed in post failure checks"
	ClusterRecovery       = "[post-chaos]: failed to recover the cluster"
	DataIntegrity         = "[post-chaos]: failed in data integrity verification"
	BucketTagVerification = "[post-chaos]: failed to verify the bucket tags"
	Teardown              = "[cleanup]: failed to tear down the scenario"
)
