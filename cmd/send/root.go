package send

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

var (
	// SendCmd delivers a command to one or all nodes
	SendCmd = &cobra.Command{
		Use:   "send [command] [name=value...]",
		Short: "Send a command to one or all nodes",
		Long: `Send a command to one or all nodes of the cluster. Values are parsed as json
when possible and used as strings otherwise, e.g.

  dsync send reload table=guilds
  dsync send change_log_level level=debug --target 3
  dsync send invalidate_cache identifier=1234 table=guilds
  dsync send restart --target 2`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: util.PrepareClient,
		RunE:    run,
	}
)

func init() {
	util.SetupBusClientFlags(SendCmd)

	key := "target"
	SendCmd.Flags().String(key, common.Broadcast, util.WrapString("The node to send to, * sends to every node"))
}

func run(cmd *cobra.Command, args []string) error {
	command, err := common.ParseCommand(args[0])
	if err != nil {
		return err
	}
	switch command {
	case common.CmdIdentify, common.CmdSend, common.CmdRequest, common.CmdResponse:
		return fmt.Errorf("%s is handled by the relay and cannot be sent", command)
	}

	cmdArgs, err := util.ParseArgs(args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	b, err := util.ConnectClient(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Send(ctx, common.NewSendEnvelope(viper.GetString("target"), command, cmdArgs)); err != nil {
		return err
	}
	// frames are written synchronously, give the relay a moment before hanging up
	time.Sleep(100 * time.Millisecond)
	fmt.Printf("Sent %s to %s\n", command.Wire(), viper.GetString("target"))
	return nil
}
