package query

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/rpc/bus"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sort"
	"time"
)

var (
	// QueryCmd asks nodes for facts and prints their answers
	QueryCmd = &cobra.Command{
		Use:   "query [fact...]",
		Short: "Ask one or all nodes for facts",
		Long: `Ask one or all nodes of the cluster for facts and print the answers as json.

Built-in facts are node_id, uptime, goroutines, log_level, cache_stats and metrics.
Keyword arguments per fact are given as json object, e.g.

  dsync query cache_stats --args '{"cache_stats": {"table": "guilds"}}'`,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: util.PrepareClient,
		RunE:    run,
	}
)

func init() {
	util.SetupBusClientFlags(QueryCmd)

	key := "target"
	QueryCmd.Flags().String(key, common.Broadcast, util.WrapString("The node to ask, * asks every node"))

	key = "args"
	QueryCmd.Flags().String(key, "", util.WrapString("Keyword arguments per fact as json object"))
}

// answer is the printed result of one node
type answer struct {
	Node    common.NodeID `json:"node"`
	Results common.Args   `json:"results"`
}

func run(cmd *cobra.Command, facts []string) error {
	kwargs := common.Args{}
	if raw := viper.GetString("args"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &kwargs); err != nil {
			return fmt.Errorf("invalid --args: %w", err)
		}
	}

	timeout := viper.GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout+time.Second)
	defer cancel()

	b, err := util.ConnectClient(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.Request(ctx, bus.Request{
		Info:    facts,
		Target:  viper.GetString("target"),
		Args:    kwargs,
		Timeout: timeout,
	})
	if err != nil {
		return err
	}

	answers := make([]answer, 0, len(res.Nodes))
	for id, results := range res.Nodes {
		answers = append(answers, answer{Node: id, Results: results})
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Node < answers[j].Node })

	out, err := json.MarshalIndent(answers, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !res.Complete {
		util.Logger.Warningf("Got %d answer(s), not every node answered within %s", len(answers), timeout)
	}
	return nil
}
