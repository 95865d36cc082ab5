package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type healthInfo struct {
	Status            string `json:"status"`
	ActiveGames       int    `json:"activeGames"`
	WaitingGames      int    `json:"waitingGames"`
	TotalGames        int    `json:"totalGames"`
	BlockchainEnabled bool   `json:"blockchainEnabled"`
	StoreConsistent   bool   `json:"storeConsistent"`
	Timestamp         string `json:"timestamp"`
}

type chainInfo struct {
	Enabled    bool   `json:"enabled"`
	TotalBets  uint64 `json:"totalBets"`
	ActiveBets uint64 `json:"activeBets"`
	ChainID    string `json:"chainId"`
	Block      uint64 `json:"block"`
	Contract   string `json:"contract"`
}

type gameRow struct {
	GameID    string    `json:"gameId"`
	BetID     string    `json:"betId"`
	Status    string    `json:"status"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2"`
	Moves     int       `json:"moves"`
	StartTime time.Time `json:"startTime"`
}

type moveRow struct {
	Ply      int    `json:"ply"`
	SAN      string `json:"san"`
	UCI      string `json:"uci"`
	Captured string `json:"captured"`
}

type gameInfo struct {
	GameID     string     `json:"gameId"`
	BetID      string     `json:"betId"`
	Status     string     `json:"status"`
	Player1    string     `json:"player1"`
	Player2    string     `json:"player2"`
	FEN        string     `json:"fen"`
	Turn       string     `json:"turn"`
	Winner     string     `json:"winner"`
	Reason     string     `json:"reason"`
	Settlement string     `json:"settlement"`
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
	Moves      []moveRow  `json:"moves"`
}

type betInfo struct {
	ID        string `json:"betId"`
	Player1   string `json:"player1"`
	Player2   string `json:"player2"`
	Amount    string `json:"amount"`
	Winner    string `json:"winner"`
	Status    string `json:"status"`
	Result    string `json:"result"`
	GameHash  string `json:"gameHash"`
	Expired   bool   `json:"expired"`
	CreatedAt string `json:"createdAt"`
}

type statsInfo struct {
	Address    string `json:"address"`
	Wins       uint64 `json:"wins"`
	Losses     uint64 `json:"losses"`
	Draws      uint64 `json:"draws"`
	TotalGames uint64 `json:"totalGames"`
}

type settlementInfo struct {
	BetID      string     `json:"betId"`
	SessionID  string     `json:"sessionId"`
	Kind       string     `json:"kind"`
	Winner     string     `json:"winner"`
	State      string     `json:"state"`
	TxHash     string     `json:"txHash"`
	Error      string     `json:"error"`
	ClaimedAt  time.Time  `json:"claimedAt"`
	ResolvedAt *time.Time `json:"resolvedAt"`
}

var now = time.Now

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and ledger status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var h healthInfo
		if err := fetch(ctx, "/health", &h); err != nil {
			return err
		}
		var chain chainInfo
		chainErr := fetch(ctx, "/api/blockchain/status", &chain)

		rows := [][2]string{
			{"Server", statusColor(h.Status)},
			{"Active games", strconv.Itoa(h.ActiveGames)},
			{"Waiting games", strconv.Itoa(h.WaitingGames)},
			{"Total games", strconv.Itoa(h.TotalGames)},
			{"Store consistent", yesNo(h.StoreConsistent)},
			{"Blockchain", yesNo(h.BlockchainEnabled)},
		}
		switch {
		case chainErr != nil:
			rows = append(rows, [2]string{"Ledger", red(chainErr.Error())})
		case chain.Enabled:
			rows = append(rows,
				[2]string{"Chain ID", orDash(chain.ChainID)},
				[2]string{"Block", strconv.FormatUint(chain.Block, 10)},
				[2]string{"Contract", orDash(chain.Contract)},
				[2]string{"Total bets", strconv.FormatUint(chain.TotalBets, 10)},
				[2]string{"Active bets", strconv.FormatUint(chain.ActiveBets, 10)},
			)
		}
		return printFields(cmd.OutOrStdout(), rows)
	},
}

var gamesStatus string

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List sessions held by the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/games"
		if gamesStatus != "" {
			path += "?status=" + url.QueryEscape(gamesStatus)
		}
		var out struct {
			Count int       `json:"count"`
			Games []gameRow `json:"games"`
		}
		if err := fetch(cmd.Context(), path, &out); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(out.Games) == 0 {
			fmt.Fprintln(w, "No games.")
			return nil
		}
		table := newTable(w, "Game", "Bet", "Status", "White", "Black", "Moves", "Started")
		t := now()
		for _, g := range out.Games {
			_ = table.Append([]string{
				g.GameID,
				orDash(g.BetID),
				statusColor(g.Status),
				shortAddr(g.Player1),
				shortAddr(g.Player2),
				strconv.Itoa(g.Moves),
				ago(g.StartTime, t),
			})
		}
		return table.Render()
	},
}

var gameCmd = &cobra.Command{
	Use:   "game <id>",
	Short: "Show one session with its move list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Game gameInfo `json:"game"`
		}
		if err := fetch(cmd.Context(), "/api/game/"+url.PathEscape(args[0]), &out); err != nil {
			return err
		}
		g := out.Game
		rows := [][2]string{
			{"Game", g.GameID},
			{"Bet", orDash(g.BetID)},
			{"Status", statusColor(g.Status)},
			{"White", orDash(g.Player1)},
			{"Black", orDash(g.Player2)},
			{"Turn", g.Turn},
			{"Position", g.FEN},
		}
		if g.Winner != "" {
			rows = append(rows, [2]string{"Winner", g.Winner}, [2]string{"Reason", orDash(g.Reason)})
		}
		if g.Settlement != "" {
			rows = append(rows, [2]string{"Settlement", statusColor(g.Settlement)})
		}
		w := cmd.OutOrStdout()
		if err := printFields(w, rows); err != nil {
			return err
		}
		if len(g.Moves) == 0 {
			return nil
		}
		fmt.Fprintln(w)
		table := newTable(w, "#", "SAN", "UCI", "Captured")
		for _, m := range g.Moves {
			_ = table.Append([]string{strconv.Itoa(m.Ply), m.SAN, m.UCI, orDash(m.Captured)})
		}
		return table.Render()
	},
}

var betCmd = &cobra.Command{
	Use:   "bet <id>",
	Short: "Show an escrow bet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Bet       betInfo `json:"bet"`
			SessionID string  `json:"sessionId"`
		}
		if err := fetch(cmd.Context(), "/api/bet/"+url.PathEscape(args[0]), &out); err != nil {
			return err
		}
		b := out.Bet
		return printFields(cmd.OutOrStdout(), [][2]string{
			{"Bet", b.ID},
			{"Status", statusColor(b.Status)},
			{"Amount", b.Amount + " ETH"},
			{"Player 1", orDash(b.Player1)},
			{"Player 2", orDash(b.Player2)},
			{"Result", orDash(b.Result)},
			{"Winner", orDash(b.Winner)},
			{"Expired", yesNo(b.Expired)},
			{"Game hash", orDash(b.GameHash)},
			{"Session", orDash(out.SessionID)},
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <address>",
	Short: "Show a player's on-chain record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Stats statsInfo `json:"stats"`
		}
		if err := fetch(cmd.Context(), "/api/stats/"+url.PathEscape(args[0]), &out); err != nil {
			return err
		}
		s := out.Stats
		return printFields(cmd.OutOrStdout(), [][2]string{
			{"Address", s.Address},
			{"Games", strconv.FormatUint(s.TotalGames, 10)},
			{"Wins", green(strconv.FormatUint(s.Wins, 10))},
			{"Losses", red(strconv.FormatUint(s.Losses, 10))},
			{"Draws", strconv.FormatUint(s.Draws, 10)},
		})
	},
}

var settlementCmd = &cobra.Command{
	Use:   "settlement <betId>",
	Short: "Show the settlement journal entry for a bet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Settlement settlementInfo `json:"settlement"`
		}
		if err := fetch(cmd.Context(), "/api/settlements/"+url.PathEscape(args[0]), &out); err != nil {
			return err
		}
		s := out.Settlement
		rows := [][2]string{
			{"Bet", s.BetID},
			{"Session", s.SessionID},
			{"Kind", s.Kind},
			{"Winner", orDash(s.Winner)},
			{"State", statusColor(s.State)},
			{"Tx", orDash(s.TxHash)},
			{"Claimed", s.ClaimedAt.Format(time.RFC3339)},
		}
		if s.ResolvedAt != nil {
			rows = append(rows, [2]string{"Resolved", s.ResolvedAt.Format(time.RFC3339)})
		}
		if s.Error != "" {
			rows = append(rows, [2]string{"Error", red(s.Error)})
		}
		return printFields(cmd.OutOrStdout(), rows)
	},
}

func init() {
	gamesCmd.Flags().StringVar(&gamesStatus, "status", "", "Filter by status (waiting, active, completed, abandoned)")
	rootCmd.AddCommand(statusCmd, gamesCmd, gameCmd, betCmd, statsCmd, settlementCmd)
}
