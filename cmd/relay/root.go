package relay

import (
	"context"
	cmdUtil "github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

var (
	relayCmdConfig = &common.RelayConfig{}
	RelayCmd       = &cobra.Command{
		Use:     "relay",
		Short:   "Start the dSync relay",
		Long:    `Start the relay every node of the cluster connects to. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSYNC_<flag> (e.g. DSYNC_ENDPOINT=0.0.0.0:8765)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	RelayCmd.PersistentFlags().String(key, "0.0.0.0:8765", cmdUtil.WrapString("The address on which the relay will listen (e.g. localhost:8765, /tmp/dsync.sock, ...)"))

	key = "route-ttl"
	RelayCmd.PersistentFlags().Duration(key, common.DefaultRouteTTL, cmdUtil.WrapString("How long responses to a request are routed back to the requester"))

	key = "queue-warn-size"
	RelayCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Log a warning when more frames than this wait for one connection"))

	key = "log-level"
	RelayCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics-endpoint"
	RelayCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which prometheus metrics are served (e.g. localhost:9101, empty to disable)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the relay configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	relayCmdConfig.Endpoint = viper.GetString("endpoint")
	relayCmdConfig.RouteTTL = viper.GetDuration("route-ttl")
	relayCmdConfig.QueueWarnSize = viper.GetInt("queue-warn-size")
	relayCmdConfig.LogLevel = viper.GetString("log-level")
	return nil
}

// run starts the relay
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(relayCmdConfig.LogLevel); err != nil {
		return err
	}

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := viper.GetString("metrics-endpoint"); endpoint != "" {
		go func() {
			if err := metrics.Serve(ctx, endpoint); err != nil {
				cmdUtil.Logger.Errorf("%v", err)
			}
		}()
	}

	serv := relay.NewServer(
		*relayCmdConfig,
		t,
		s,
	)

	return serv.Serve(ctx)
}
