package util

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/ValentinKolb/dSync/lib/node"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/rpc/bus"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/tcp"
	"github.com/ValentinKolb/dSync/rpc/transport/unix"
	"github.com/ValentinKolb/dSync/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
	"time"
)

var Logger = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and binds environment variables (DSYNC_<FLAG>) to viper
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// PrepareClient binds the flags of a client command and keeps the logs quiet
func PrepareClient(cmd *cobra.Command, _ []string) error {
	if err := BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers("warn")
}

// SetupBusClientFlags adds the flags needed to reach the relay as a client
func SetupBusClientFlags(cmd *cobra.Command) {
	key := "relay-endpoint"
	cmd.PersistentFlags().String(key, "localhost:8765", WrapString("The address of the relay (host:port, socket path or ws:// url depending on the transport)"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 5*time.Second, WrapString("How long to wait for answers"))

	key = "client-id"
	cmd.PersistentFlags().Int64(key, 0, WrapString("The id announced to the relay (default: negative process id)"))

	key = "cluster-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("The number of nodes expected to answer a broadcast request (0 = wait for the timeout)"))
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() common.ClientConfig {
	id := viper.GetInt64("client-id")
	if id == 0 {
		id = -int64(os.Getpid())
	}
	return common.ClientConfig{
		Endpoint:       viper.GetString("relay-endpoint"),
		NodeID:         common.NodeID(id),
		Role:           common.RoleClient,
		ClusterSize:    viper.GetInt("cluster-size"),
		RequestTimeout: viper.GetDuration("timeout"),
	}.WithDefaults()
}

// GetSerializer creates the serializer selected with --serializer
func GetSerializer() (serializer.IEnvelopeSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// GetClientTransport creates the client transport selected with --transport
func GetClientTransport() (transport.IClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	case "ws":
		return ws.NewWSClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport selected with --transport
func GetServerTransport() (transport.IServerTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	case "ws":
		return ws.NewWSServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// ConnectClient dials the relay as a client. The returned bus is already reading.
func ConnectClient(ctx context.Context) (*bus.Bus, error) {
	s, err := GetSerializer()
	if err != nil {
		return nil, err
	}
	t, err := GetClientTransport()
	if err != nil {
		return nil, err
	}
	b := bus.New(GetClientConfig(), t, s)
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	go func() { _ = b.Run(ctx) }()
	return b, nil
}

// --------------------------------------------------------------------------
// Tables
// --------------------------------------------------------------------------

// tableFile is one entry of the "tables" list of the config file
type tableFile struct {
	Name       string   `mapstructure:"name"`
	KeyColumns []string `mapstructure:"key_columns"`
	Select     string   `mapstructure:"select"`
	Insert     string   `mapstructure:"insert"`
	Delete     string   `mapstructure:"delete"`
	DefaultID  []int64  `mapstructure:"default_id"`
	Broadcast  bool     `mapstructure:"broadcast"`
}

// GetTables reads the tables of the config file given with --config.
// Without a config file the built-in tables are used.
func GetTables() ([]cache.TableConfig, error) {
	path := viper.GetString("config")
	if path == "" {
		return node.DefaultTables(), nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var files []tableFile
	if err := viper.UnmarshalKey("tables", &files); err != nil {
		return nil, fmt.Errorf("invalid tables in %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("config %s defines no tables", path)
	}

	tables := make([]cache.TableConfig, 0, len(files))
	for _, f := range files {
		defaultID := f.DefaultID
		if len(defaultID) == 0 {
			// the default row uses 0 for every key column
			defaultID = make([]int64, len(f.KeyColumns))
		}
		id, err := cache.NewIdentifier(defaultID...)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", f.Name, err)
		}
		cfg := cache.TableConfig{
			Table: store.Table{
				Name:       f.Name,
				KeyColumns: f.KeyColumns,
				Select:     f.Select,
				Insert:     f.Insert,
				Delete:     f.Delete,
			},
			DefaultID: id,
			Broadcast: f.Broadcast,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		tables = append(tables, cfg)
	}
	return tables, nil
}

// --------------------------------------------------------------------------
// Arguments
// --------------------------------------------------------------------------

// ParseArgs parses name=value pairs into ordered arguments. Values are decoded as
// JSON when possible ("12", "true", "[1,2]") and used as plain strings otherwise.
func ParseArgs(pairs []string) (common.Args, error) {
	args := common.Args{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q (expected name=value)", pair)
		}
		args = append(args, common.Arg{Name: name, Value: ParseValue(raw)})
	}
	return args, nil
}

// ParseValue decodes raw as a JSON value, falling back to the string itself
func ParseValue(raw string) any {
	var wrapped common.Args
	if err := json.Unmarshal([]byte(`{"v":`+raw+`}`), &wrapped); err == nil && len(wrapped) == 1 {
		return wrapped[0].Value
	}
	return raw
}
