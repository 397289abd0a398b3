package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	// Uncomment to load all auth plugins
	// _ "k8s.io/client-go/plugin/pkg/client/auth"

	fence "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/network-fence/lib"
	netsplit "github.com/litmuschaos/stretch-dr-go/chaoslib/litmus/network-split/lib"
	"github.com/litmuschaos/stretch-dr-go/pkg/clients"
	ec2 "github.com/litmuschaos/stretch-dr-go/pkg/cloud/aws/ec2"
	s3 "github.com/litmuschaos/stretch-dr-go/pkg/cloud/aws/s3"
	"github.com/litmuschaos/stretch-dr-go/pkg/events"
	"github.com/litmuschaos/stretch-dr-go/pkg/health"
	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"github.com/litmuschaos/stretch-dr-go/pkg/metrics"
	"github.com/litmuschaos/stretch-dr-go/pkg/scenario"
	"github.com/litmuschaos/stretch-dr-go/pkg/session"
	"github.com/litmuschaos/stretch-dr-go/pkg/stretch/environment"
	experimentTypes "github.com/litmuschaos/stretch-dr-go/pkg/stretch/types"
	"github.com/litmuschaos/stretch-dr-go/pkg/telemetry"
	"github.com/litmuschaos/stretch-dr-go/pkg/tolerance"
	"github.com/litmuschaos/stretch-dr-go/pkg/utils/exec"
	"github.com/palantir/stacktrace"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

type runOptions struct {
	kubeconfig string
	zones      string
	duration   int
	fencing    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "stretch-dr",
		Short:        "Disaster recovery verification for stretch storage clusters",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newRunCmd(), newListCmd())
	return rootCmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available scenarios",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, sc := range scenario.List() {
				fmt.Fprintf(w, "%s\t%s\n", sc.Name, sc.Description)
			}
			w.Flush()
		},
	}
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	run := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario end to end",
		Long:  "Run one scenario end to end. Settings not given as flags are read from the environment.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details := &experimentTypes.ExperimentDetails{}
			environment.GetENV(details)
			details.ScenarioName = args[0]
			if cmd.Flags().Changed("zones") {
				details.NetsplitZones = opts.zones
			}
			if cmd.Flags().Changed("duration") {
				details.ChaosDuration = opts.duration
			}
			if cmd.Flags().Changed("fencing") {
				details.Fencing = opts.fencing
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, opts.kubeconfig, details)
		},
	}
	run.Flags().StringVar(&opts.kubeconfig, "kubeconfig", "", "path to the kubeconfig, in-cluster config is used when empty")
	run.Flags().StringVar(&opts.zones, "zones", "", "zone groups cut by the network split, e.g. ab-bc")
	run.Flags().IntVar(&opts.duration, "duration", 0, "fault duration in minutes")
	run.Flags().BoolVar(&opts.fencing, "fencing", true, "fence the nodes of a shutdown zone")
	return run
}

func runScenario(ctx context.Context, kubeconfig string, details *experimentTypes.ExperimentDetails) error {
	log.SetLevel(details.LogLevel)
	if _, ok := scenario.Lookup(details.ScenarioName); !ok {
		return errors.Errorf("unsupported scenario %q, see the list command", details.ScenarioName)
	}

	c := clients.ClientSets{}
	if err := c.GenerateClientSetFromKubeConfig(kubeconfig); err != nil {
		log.Errorf("Unable to Get the kubeconfig, err: %v", err)
		return err
	}

	table, err := tolerance.Load(details.ToleranceConfig)
	if err != nil {
		log.Errorf("Unable to load the tolerance table, err: %v", err)
		return err
	}

	shutdown, err := telemetry.InitOTelSDK(ctx, details.OTelEndpoint)
	if err != nil {
		log.Errorf("Failed to initialize OTel SDK: %v", err)
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Errorf("Failed to shutdown OTel SDK: %v", err)
		}
	}()
	ctx = telemetry.GetTraceParentContext(ctx)

	m, err := metrics.New(details.ScenarioName)
	if err != nil {
		return stacktrace.Propagate(err, "could not create the metrics")
	}
	defer m.Shutdown(context.Background())

	recorder := events.NewEventRecorder(c, details.Namespace)
	defer recorder.Shutdown()

	clk := clock.RealClock{}
	s := session.New(c, details, clk, exec.NewSPDYExecutor(c), ec2.NewPowerController(c, details.Region, clk), table)
	r := scenario.NewRun(s, health.NewToolbox(s), recorder, m)
	r.Scheduler = &netsplit.HelperScheduler{
		Clients:   c,
		Namespace: details.Namespace,
		Image:     details.HelperImage,
		ZoneLabel: details.ZoneLabel,
		Arbiter:   details.ArbiterZone,
		DataZones: details.DataZones,
		RunID:     details.RunID,
	}
	r.Fencer = fence.NewCSIFencer(c, details.ClusterNamespace, clk)
	r.Store = s3.NewBucketStore(details.Region, details.S3Endpoint)

	resultDetails, err := scenario.Execute(ctx, r, details.ScenarioName)
	if err != nil {
		return err
	}
	log.InfoWithValues("[Summary]: Scenario finished", logrus.Fields{
		"Scenario": resultDetails.Scenario,
		"Verdict":  resultDetails.Verdict,
		"Outcomes": len(resultDetails.Outcomes),
	})
	return nil
}
