package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spawnagents/spawn-sdk-go/spawn/rest"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewAgentsCmd creates the agents list command.
func NewAgentsCmd() *cobra.Command {
	var (
		filters    rest.AgentFilters
		sortField  string
		direction  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents",
		Example: `  spawnctl agents --category trading --sort most-active
  spawnctl agents --search pepe --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sort := rest.AgentSort{Field: rest.SortField(sortField), Direction: direction}
			agents, err := GetCLIContext(cmd).REST().ListAgents(cmd.Context(), filters, sort)
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), agents)
			}
			printAgents(cmd.OutOrStdout(), agents)
			return nil
		},
	}

	cmd.Flags().StringVar(&filters.Category, "category", "", "trading, research, analytics, social, defi, nft or all")
	cmd.Flags().StringVar(&filters.Status, "status", "", "active, idle, offline or all")
	cmd.Flags().StringVar(&filters.Search, "search", "", "match name, ticker or description")
	cmd.Flags().StringVar(&sortField, "sort", "", "newest, most-active, highest-volume or price-change")
	cmd.Flags().StringVar(&direction, "direction", "", "asc or desc")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// NewAgentCmd creates the single agent command.
func NewAgentCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "agent <id>",
		Short: "Show one agent with its wallet and skills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := GetCLIContext(cmd).REST()
			ctx := cmd.Context()

			agent, err := api.GetAgent(ctx, args[0])
			if err != nil {
				if rest.IsNotFound(err) {
					return fmt.Errorf("agent %s not found", args[0])
				}
				return fmt.Errorf("get agent: %w", err)
			}
			wallet, err := api.GetWallet(ctx, agent.ID)
			if err != nil && !rest.IsNotFound(err) {
				return fmt.Errorf("get wallet: %w", err)
			}
			skills, err := api.GetAgentSkills(ctx, agent.ID)
			if err != nil && !rest.IsNotFound(err) {
				return fmt.Errorf("get skills: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, struct {
					Agent  *rest.Agent      `json:"agent"`
					Wallet *rest.WalletInfo `json:"wallet,omitempty"`
					Skills []rest.Skill     `json:"skills"`
				}{agent, wallet, skills})
			}
			printAgent(out, agent, wallet, skills)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// NewHeartbeatsCmd creates the heartbeats command.
func NewHeartbeatsCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "heartbeats <agent-id>",
		Short: "Show recent agent cycles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			beats, err := GetCLIContext(cmd).REST().GetHeartbeats(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return fmt.Errorf("get heartbeats: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), beats)
			}
			printHeartbeats(cmd.OutOrStdout(), beats)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of cycles")
	cmd.Flags().IntVar(&offset, "offset", 0, "cycles to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

// NewSkillsCmd creates the skills command.
func NewSkillsCmd() *cobra.Command {
	var (
		category   string
		search     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "skills [id]",
		Short: "List skills, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := GetCLIContext(cmd).REST()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				skill, err := api.GetSkill(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get skill: %w", err)
				}
				if jsonOutput {
					return printJSON(out, skill)
				}
				printSkills(out, []rest.Skill{*skill})
				return nil
			}

			skills, err := api.ListSkills(cmd.Context(), category, search)
			if err != nil {
				return fmt.Errorf("list skills: %w", err)
			}
			if jsonOutput {
				return printJSON(out, skills)
			}
			printSkills(out, skills)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "skill category or all")
	cmd.Flags().StringVar(&search, "search", "", "match name, description or tools")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAgents(w io.Writer, agents []rest.Agent) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTICKER\tSTATUS\tCYCLES\tPRICE\t24H")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t$%s\t%s\t%d\t%.8g\t%s\n",
			a.ID, a.Name, a.Ticker, statusText(a.Status), a.CycleCount, a.TokenPrice, changeText(a.PriceChange24h))
	}
	tw.Flush()
}

func printAgent(w io.Writer, a *rest.Agent, wallet *rest.WalletInfo, skills []rest.Skill) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s ($%s)\n", a.Name, a.Ticker)
	if a.Description != "" {
		fmt.Fprintln(w, a.Description)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", a.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", statusText(a.Status))
	fmt.Fprintf(tw, "Category:\t%s\n", a.Category)
	fmt.Fprintf(tw, "Cycles:\t%d\n", a.CycleCount)
	fmt.Fprintf(tw, "Price:\t%.8g (%s)\n", a.TokenPrice, changeText(a.PriceChange24h))
	if a.RepoURL != "" {
		fmt.Fprintf(tw, "Repo:\t%s\n", a.RepoURL)
	}
	if wallet != nil {
		fmt.Fprintf(tw, "Wallet:\t%s (%.4f ETH on %s)\n", wallet.Address, wallet.Balance, wallet.Chain)
	}
	tw.Flush()

	if len(skills) > 0 {
		names := make([]string, 0, len(skills))
		for _, s := range skills {
			names = append(names, s.Name)
		}
		fmt.Fprintf(w, "Skills: %s\n", strings.Join(names, ", "))
	}
}

func printHeartbeats(w io.Writer, beats []rest.Heartbeat) {
	if len(beats) == 0 {
		fmt.Fprintln(w, "No heartbeats yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tTIME\tSTATUS\tACTION")
	for _, hb := range beats {
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\n",
			hb.CycleNumber, hb.Timestamp.Local().Format("2006-01-02 15:04:05"), heartbeatStatusText(hb.Status), hb.Action)
	}
	tw.Flush()
}

func printSkills(w io.Writer, skills []rest.Skill) {
	if len(skills) == 0 {
		fmt.Fprintln(w, "No skills found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tVERSION\tINSTALLS\tTOOLS")
	for _, s := range skills {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Name, s.Category, s.Version, s.Installs, strings.Join(s.Tools, ","))
	}
	tw.Flush()
}

func statusText(s rest.AgentStatus) string {
	switch s {
	case rest.AgentStatusActive:
		return color.GreenString(string(s))
	case rest.AgentStatusIdle:
		return color.YellowString(string(s))
	default:
		return color.New(color.Faint).Sprint(string(s))
	}
}

func heartbeatStatusText(s rest.HeartbeatStatus) string {
	switch s {
	case rest.HeartbeatSuccess:
		return color.GreenString(string(s))
	case rest.HeartbeatError:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func changeText(pct float64) string {
	text := fmt.Sprintf("%+.2f%%", pct)
	if pct < 0 {
		return color.RedString(text)
	}
	return color.GreenString(text)
}
