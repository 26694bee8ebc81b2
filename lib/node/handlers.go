package node

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// registerHandlers wires the bus commands to the node
func (n *Node) registerHandlers() {
	n.bus.Handle(common.CmdRequest, n.facts.Handler(n.bus))
	n.bus.Handle(common.CmdInvalidate, n.tables.HandleInvalidate)
	n.bus.Handle(common.CmdClose, n.onClose)
	n.bus.Handle(common.CmdRestart, n.onRestart)
	n.bus.Handle(common.CmdReload, n.onReload)
	n.bus.Handle(common.CmdChangeLogLevel, n.onChangeLogLevel)
}

func (n *Node) onClose(_ context.Context, env common.Envelope) error {
	Logger.Warningf("Node %s asked every node to stop", env.Source)
	n.Exit(ExitKillEverything)
	return nil
}

func (n *Node) onRestart(_ context.Context, env common.Envelope) error {
	Logger.Warningf("Node %s asked for a restart", env.Source)
	n.Exit(ExitRestartCluster)
	return nil
}

// onReload resets the table named by the first argument, or all tables
func (n *Node) onReload(_ context.Context, env common.Envelope) error {
	name := ""
	if v, ok := env.Args.Get("table"); ok {
		name = fmt.Sprint(v)
	} else if values := env.Args.Values(); len(values) > 0 {
		name = fmt.Sprint(values[0])
	}
	return n.tables.Reset(name)
}

// onChangeLogLevel applies the level given as first argument
func (n *Node) onChangeLogLevel(_ context.Context, env common.Envelope) error {
	level := ""
	if v, ok := env.Args.Get("level"); ok {
		level = fmt.Sprint(v)
	} else if values := env.Args.Values(); len(values) > 0 {
		level = fmt.Sprint(values[0])
	}
	if err := common.SetLogLevel(level); err != nil {
		return err
	}
	Logger.Infof("Log level changed to %s by node %s", level, env.Source)
	return nil
}
