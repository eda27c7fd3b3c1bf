package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/memtools"
	devserver "github.com/HendryAvila/devmem/internal/server"
	"github.com/HendryAvila/devmem/internal/teamtools"
	"github.com/HendryAvila/devmem/internal/updater"
)

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write devmem.yaml for this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _ := cmd.Flags().GetString("root")
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("team") {
				cfg.TeamID, _ = cmd.Flags().GetString("team")
			}
			if cmd.Flags().Changed("member") {
				cfg.MemberID, _ = cmd.Flags().GetString("member")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.Path(cfg.MetaDir))
			return nil
		},
	}
	cmd.Flags().String("team", "", "Team id shared by every member")
	cmd.Flags().String("member", "", "Default member id for team tools")
	return cmd
}

func recallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recall [request]",
		Short: "Print the project memory recalled for a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("detail")
			rt, err := openSession(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			_, text, err := rt.engine.RecallContext(cmd.Context(), strings.Join(args, " "), memory.ParseDetailLevel(level))
			if err != nil {
				return err
			}
			if text == "" {
				text = "No relevant memory."
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().String("detail", string(memory.DetailStandard), "summary, standard or full")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show project memory statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openSession(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.engine.Memory.GetStatistics(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), memtools.FormatStats(stats))
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all project memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			rt, err := openSession(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.Memory.ClearAllMemory(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Project memory cleared.")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deletion")
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show team analytics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			member, _ := cmd.Flags().GetString("member")
			rt, err := openSession(cmd.Context(), cmd, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			var (
				report any
				text   string
			)
			if member != "" {
				ma, err := rt.engine.Analytics.GetMemberAnalytics(cmd.Context(), member)
				if err != nil {
					return err
				}
				report, text = ma, teamtools.FormatMember(ma)
			} else {
				ta, err := rt.engine.Analytics.GetTeamAnalytics(cmd.Context())
				if err != nil {
					return err
				}
				report, text = ta, teamtools.FormatTeam(ta)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().String("member", "", "Report on one member instead of the team")
	return cmd
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "devmem v%s\n", devserver.Version)
			if check, _ := cmd.Flags().GetBool("check"); check {
				res := updater.CheckVersion(cmd.Context(), devserver.Version)
				switch {
				case res.UpdateAvailable:
					fmt.Fprintf(out, "Update available: v%s (%s)\n", res.LatestVersion, res.ReleaseURL)
				case res.LatestVersion != "":
					fmt.Fprintln(out, "Up to date.")
				default:
					fmt.Fprintln(out, "Could not determine the latest release.")
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("check", false, "Check GitHub for a newer release")
	return cmd
}
