package types

import (
	"time"
)

// ExperimentDetails is for collecting all the run-related details of a stretch cluster scenario
type ExperimentDetails struct {
	ScenarioName      string
	RunID             string
	Namespace         string
	ClusterNamespace  string
	ZoneLabel         string
	ArbiterZone       string
	DataZones         []string
	NetsplitZones     string
	ChaosDuration     int
	NetsplitLeadTime  int
	NetsplitMargin    int
	DaemonSettleTime  int
	RelocationBuffer  int
	Timeout           int
	Delay             int
	HealthCheckTries  int
	NodeWaitTries     int
	NodeWaitDelay     int
	Fencing           bool
	ResourceKind      string
	ResourceDeletes   int
	LogWriterImage    string
	LogReaderDuration int
	CephFSStorage     string
	RBDStorage        string
	HelperImage       string
	ToolboxLabel      string
	Region            string
	S3Endpoint        string
	BucketCount       int
	PoolWorkers       int
	OTelEndpoint      string
	Pushgateway       string
	ToleranceConfig   string
	LogLevel          string
}

// ChaosDurationTime is the configured fault duration
func (e *ExperimentDetails) ChaosDurationTime() time.Duration {
	return time.Duration(e.ChaosDuration) * time.Minute
}

// LeadTime is the delay between scheduling a network split and its start
func (e *ExperimentDetails) LeadTime() time.Duration {
	return time.Duration(e.NetsplitLeadTime) * time.Minute
}

// Margin is the quiet period waited after a scheduled fault ends
func (e *ExperimentDetails) Margin() time.Duration {
	return time.Duration(e.NetsplitMargin) * time.Minute
}

// SettleTime is the wait between scaling a daemon down and back up
func (e *ExperimentDetails) SettleTime() time.Duration {
	return time.Duration(e.DaemonSettleTime) * time.Second
}

// RelocationTime is the wait for workloads to move off shut down nodes
func (e *ExperimentDetails) RelocationTime() time.Duration {
	return time.Duration(e.RelocationBuffer) * time.Second
}
