package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/park285/cheese-wager/internal/restclient"
)

var rootCmd = &cobra.Command{
	Use:   "wagerctl",
	Short: "Inspect a running cheese-wager server",
	Long: `wagerctl queries the read API of a cheese-wager server: live games,
bets on the escrow contract, player statistics and settlement records.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("no-color") {
			color.NoColor = true
		}
	},
}

// newClient is swapped in tests.
var newClient = func() *restclient.Client {
	return restclient.New(viper.GetString("server"),
		restclient.WithTimeout(viper.GetDuration("timeout")),
		restclient.WithRetry(3),
	)
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:5000", "Server base URL (env WAGERCTL_SERVER)")
	pf.Duration("timeout", 10*time.Second, "Request timeout")
	pf.Bool("no-color", false, "Disable colored output")
	_ = viper.BindPFlag("server", pf.Lookup("server"))
	_ = viper.BindPFlag("timeout", pf.Lookup("timeout"))
	_ = viper.BindPFlag("no-color", pf.Lookup("no-color"))
}

func initConfig() {
	viper.SetEnvPrefix("WAGERCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// envelope is the {success,error} frame every read API answer carries.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// fetch GETs path into out and turns {success:false} answers into errors.
func fetch(ctx context.Context, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw := json.RawMessage{}
	if err := newClient().GetJSON(ctx, path, &raw); err != nil {
		var se *restclient.StatusError
		if errors.As(err, &se) {
			var env envelope
			if json.Unmarshal([]byte(se.Body), &env) == nil && env.Error != "" {
				return fmt.Errorf("%s (HTTP %d)", env.Error, se.Status)
			}
		}
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && !env.Success && env.Error != "" {
		return errors.New(env.Error)
	}
	return json.Unmarshal(raw, out)
}
