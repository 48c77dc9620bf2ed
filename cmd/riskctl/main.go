package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/agent"
	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/logging"
	"github.com/jmerrifield20/riskengine/internal/risk"
	"github.com/jmerrifield20/riskengine/internal/scan"
	"github.com/jmerrifield20/riskengine/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	userID    string
	cfgFile   string
	verbose   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "riskctl",
	Short: "Risk engine agent and CLI",
	Long: `riskctl reports this host to a risk engine server, runs discovery
scans, and queries the scored asset inventory.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.riskctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("RISKCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if userID == "" {
			userID = viper.GetString("user_id")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.riskctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "risk engine URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "owner user ID sent as X-User-ID")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log telemetry warnings to stderr")

	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithUserID(userID))
}

func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	return logging.New(logging.Config{Level: "debug", Format: "console", Name: "riskctl"})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// ── heartbeat ────────────────────────────────────────────────────────────────

var (
	hbDryRun    bool
	hbInterval  time.Duration
	hbAssetType string
	hbFile      string
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Collect local telemetry and submit it as a heartbeat",
	Long: `heartbeat reads this host's identity, listening ports, network and load
telemetry, and submits it to the server, which scores and stores the asset.

  riskctl heartbeat --user u-123
  riskctl heartbeat --interval 5m       # keep reporting until interrupted
  riskctl heartbeat --dry-run           # print the payload, send nothing
  riskctl heartbeat --file payload.json # send a prepared payload`,
	RunE: runHeartbeat,
}

func init() {
	heartbeatCmd.Flags().BoolVar(&hbDryRun, "dry-run", false, "print the payload without sending it")
	heartbeatCmd.Flags().DurationVar(&hbInterval, "interval", 0, "repeat every interval until interrupted; 0 sends once")
	heartbeatCmd.Flags().StringVar(&hbAssetType, "type", "", "asset type override (server, endpoint, database, ...)")
	heartbeatCmd.Flags().StringVar(&hbFile, "file", "", "read the payload from a JSON file instead of collecting it")
}

func buildPayload(ctx context.Context) (*model.HeartbeatPayload, error) {
	if hbFile != "" {
		return readPayload(hbFile)
	}
	p, err := agent.Collect(ctx, version, cliLogger())
	if err != nil {
		return nil, err
	}
	if hbAssetType != "" {
		p.AssetType = hbAssetType
	}
	return p, nil
}

func readPayload(path string) (*model.HeartbeatPayload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	var p model.HeartbeatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse payload %s: %w", path, err)
	}
	return &p, nil
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if hbDryRun {
		p, err := buildPayload(ctx)
		if err != nil {
			return err
		}
		printJSON(p)
		return nil
	}
	if userID == "" {
		return errors.New("--user is required (or set user_id in the config file)")
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	send := func() error {
		p, err := buildPayload(ctx)
		if err != nil {
			return err
		}
		res, err := c.Heartbeat(ctx, p)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		level := risk.GetRiskLevel(res.RiskScore)
		fmt.Printf("%s %s: risk %d (%s), status %s\n",
			res.Action, res.Asset.Hostname, res.RiskScore, level.Label, res.Asset.Status)
		return nil
	}

	if err := send(); err != nil || hbInterval <= 0 {
		return err
	}

	ticker := time.NewTicker(hbInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := send(); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// ── scan ─────────────────────────────────────────────────────────────────────

var (
	scanType   string
	scanSubnet string
	scanFollow string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a discovery scan and stream its progress",
	Long: `scan starts a discovery scan on the server and prints its log as it runs.
Interrupting the command cancels the scan.

  riskctl scan --type full --subnet 10.0.0.0/24
  riskctl scan --follow <scan-id>   # attach to a running scan without cancelling it`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanType, "type", model.ScanTypeQuick, "scan type: quick, full, targeted, agent_sync")
	scanCmd.Flags().StringVar(&scanSubnet, "subnet", "", "target subnet (default "+scan.DefaultSubnet+")")
	scanCmd.Flags().StringVar(&scanFollow, "follow", "", "follow an existing scan by ID")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	c, err := newClient()
	if err != nil {
		return err
	}

	printEvent := func(ev scan.Event) error {
		switch ev.Type {
		case scan.EventLog:
			if ev.Entry != nil {
				fmt.Printf("[%3d%%] %-7s %s\n", lastProgress, strings.ToUpper(ev.Entry.Level), ev.Entry.Message)
			}
		case scan.EventProgress:
			lastProgress = ev.Progress
		}
		return nil
	}

	var final *scan.Event
	if scanFollow != "" {
		final, err = c.FollowScan(ctx, scanFollow, printEvent)
	} else {
		if userID == "" {
			return errors.New("--user is required (or set user_id in the config file)")
		}
		final, err = c.StartScan(ctx, scanType, scanSubnet, printEvent)
	}
	if err != nil {
		if ctx.Err() != nil {
			return errors.New("scan interrupted")
		}
		return err
	}

	if final.Type == scan.EventError {
		return fmt.Errorf("scan %s: %s", final.Status, final.Message)
	}
	fmt.Printf("scan %s: %d assets found, %d new, %d updated\n",
		final.ScanID, final.AssetsFound, final.AssetsNew, final.AssetsUpdated)
	return nil
}

var lastProgress int

// ── score ────────────────────────────────────────────────────────────────────

var (
	scoreFile    string
	scoreOffline bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a payload without storing it",
	Long: `score computes the risk score of this host, or of a JSON payload, without
creating an asset. --offline scores locally without contacting the server.

  riskctl score
  riskctl score --file payload.json --offline`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreFile, "file", "", "read the payload from a JSON file instead of collecting it")
	scoreCmd.Flags().BoolVar(&scoreOffline, "offline", false, "score locally instead of calling the server")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var p *model.HeartbeatPayload
	var err error
	if scoreFile != "" {
		p, err = readPayload(scoreFile)
	} else {
		p, err = agent.Collect(ctx, version, cliLogger())
	}
	if err != nil {
		return err
	}

	if scoreOffline {
		res := risk.Score(risk.InputFromHeartbeat(p, time.Now().UTC()))
		printJSON(client.ScoreResult{
			RiskScore:     res.Score,
			RiskFactors:   res.Factors,
			Status:        res.Status,
			Level:         risk.GetRiskLevel(res.Score),
			VectorContext: res.Context,
		})
		return nil
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.Score(ctx, p)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	printJSON(res)
	return nil
}

// ── assets ───────────────────────────────────────────────────────────────────

var (
	assetsStatus string
	assetsType   string
	assetsSearch string
	assetsFormat string
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List the owner's assets, highest risk first",
	RunE:  runAssetsList,
}

var assetsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		a, err := c.GetAsset(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printJSON(a)
		return nil
	},
}

var assetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteAsset(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	assetsCmd.Flags().StringVar(&assetsStatus, "status", "", "filter by status (active, warning, critical, inactive)")
	assetsCmd.Flags().StringVar(&assetsType, "type", "", "filter by asset type")
	assetsCmd.Flags().StringVar(&assetsSearch, "search", "", "match hostname, IP, or OS")
	assetsCmd.Flags().StringVar(&assetsFormat, "format", "text", "output format: text or json")
	assetsCmd.AddCommand(assetsGetCmd)
	assetsCmd.AddCommand(assetsDeleteCmd)
}

func runAssetsList(cmd *cobra.Command, args []string) error {
	if userID == "" {
		return errors.New("--user is required (or set user_id in the config file)")
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	assets, err := c.ListAssets(cmd.Context(), client.AssetQuery{
		Status: assetsStatus,
		Type:   assetsType,
		Search: assetsSearch,
	})
	if err != nil {
		return err
	}

	if assetsFormat == "json" {
		printJSON(assets)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOSTNAME\tIP\tTYPE\tRISK\tLEVEL\tSTATUS\tLAST SEEN")
	for _, a := range assets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			a.ID, a.Hostname, a.IPAddress, a.AssetType, a.RiskScore,
			risk.GetRiskLevel(a.RiskScore).Label, a.Status, a.LastSeen.Format(time.RFC3339))
	}
	return w.Flush()
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the riskctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("riskctl %s\n", version)
	},
}
