package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"schedule-management-backend/internal/analysis"
)

var (
	loginEmail    string
	loginPassword string
	loginRegister bool
	loginName     string

	importTemplate int64
	importAnalyze  bool

	analysisType string
	waitResults  bool
	pollInterval time.Duration
	noSkipLocked bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in (or register) and store the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		if loginEmail == "" {
			return fmt.Errorf("--email is required")
		}
		password := loginPassword
		if password == "" {
			password = os.Getenv("IMPORTCTL_PASSWORD")
		}
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "password: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimSpace(line)
		}

		var uid int
		if loginRegister {
			res, err := api.Register(ctx, loginEmail, password, loginName)
			if err != nil {
				return err
			}
			uid = res.UserID
		} else {
			res, err := api.Login(ctx, loginEmail, password)
			if err != nil {
				return err
			}
			uid = res.UserID
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("logged in")+mutedStyle.Render(fmt.Sprintf(" as user %d at %s", uid, api.BaseURL())))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Tokens().Clear()
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Upload a CSV schedule as a new import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := api.UploadCSV(ctx, filepath.Base(args[0]), f, importTemplate)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, boxStyle.Render(strings.Join([]string{
			titleStyle.Render("Import " + res.ImportID),
			field("entries created", res.EntriesCreated),
		}, "\n")))

		if !importAnalyze {
			return nil
		}
		sub, err := api.SubmitAnalysis(ctx, analysis.SubmitRequest{
			EntryIDs:     res.EntryIDs,
			AnalysisType: analysis.Type(analysisType),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderSubmit(sub))
		return maybeWait(cmd, sub.AnalysisID)
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries <import-id>",
	Short: "List the entries of an import with their lock state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		entries, err := api.ListEntries(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			lock := ""
			if e.AIAnalysis.IsLocked {
				lock = warnStyle.Render(" locked")
			}
			fmt.Fprintf(out, "%-6d %-12s %-10s %s%s\n",
				e.ID, e.Ngay, e.GioBatDau, e.MonHoc, mutedStyle.Render(" ["+string(e.AIAnalysis.Status)+"]")+lock)
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <entry-id>...",
	Short: "Submit entries for analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		res, err := api.SubmitAnalysis(ctx, analysis.SubmitRequest{
			EntryIDs:     ids,
			AnalysisType: analysis.Type(analysisType),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSubmit(res))
		return maybeWait(cmd, res.AnalysisID)
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <analysis-id>",
	Short: "Show the results of an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if waitResults {
			return maybeWait(cmd, args[0])
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := api.GetResults(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderResults(res))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entry lock and analysis counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		me, err := api.Me(ctx)
		if err != nil {
			return err
		}
		st, err := api.GetStatus(ctx, me.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <entry-id>...",
	Short: "Force-release entries stuck in an analysis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		res, err := api.UnlockEntries(ctx, analysis.UnlockRequest{EntryIDs: ids})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("unlocked %d entries", res.EntriesUnlocked))+
			mutedStyle.Render(fmt.Sprintf(" %v", res.EntryIDs)))
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <import-id>...",
	Short: "Analyze every entry of one or more imports",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		skip := !noSkipLocked
		res, err := api.BatchAnalyze(ctx, analysis.BatchRequest{
			ImportIDs:    args,
			AnalysisType: analysis.Type(analysisType),
			SkipLocked:   &skip,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSubmit(res))
		return maybeWait(cmd, res.AnalysisID)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (or IMPORTCTL_PASSWORD, or prompt)")
	loginCmd.Flags().BoolVar(&loginRegister, "register", false, "create the account first")
	loginCmd.Flags().StringVar(&loginName, "name", "", "display name when registering")

	importCmd.Flags().Int64Var(&importTemplate, "template", 0, "template id (0 = builtin timetable)")
	importCmd.Flags().BoolVar(&importAnalyze, "analyze", false, "submit the new entries right away")

	for _, c := range []*cobra.Command{importCmd, analyzeCmd, batchCmd} {
		c.Flags().StringVarP(&analysisType, "type", "t", string(analysis.TypeBoth), "analysis type: parsing, ai or both")
		c.Flags().BoolVarP(&waitResults, "wait", "w", false, "poll until the analysis finishes")
		c.Flags().DurationVar(&pollInterval, "poll", time.Second, "poll interval with --wait")
	}
	resultsCmd.Flags().BoolVarP(&waitResults, "wait", "w", false, "poll until the analysis finishes")
	resultsCmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "poll interval with --wait")

	batchCmd.Flags().BoolVar(&noSkipLocked, "no-skip-locked", false, "fail instead of skipping entries that are already locked")
}

func maybeWait(cmd *cobra.Command, analysisID string) error {
	if !waitResults {
		return nil
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	res, err := api.WaitForResults(ctx, analysisID, pollInterval)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderResults(res))
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid entry id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
