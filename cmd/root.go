package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dSync/cmd/node"
	"github.com/ValentinKolb/dSync/cmd/query"
	"github.com/ValentinKolb/dSync/cmd/relay"
	"github.com/ValentinKolb/dSync/cmd/send"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dsync",
		Short: "cluster bus and coalescing table cache",
		Long: fmt.Sprintf(`dSync (v%s)

Keeps the row caches of a sharded application coherent. Every node caches
database rows in memory, coalesces writes into one upsert per row and tick,
and tells the other nodes about its writes through a shared relay.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dSync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dSync v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(node.NodeCmd)
	RootCmd.AddCommand(relay.RelayCmd)
	RootCmd.AddCommand(query.QueryCmd)
	RootCmd.AddCommand(send.SendCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, zjson)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, ws)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
