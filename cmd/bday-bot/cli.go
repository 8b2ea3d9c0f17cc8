package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/roster"
)

// cli holds the command tree and the state shared by its commands.
type cli struct {
	root *cobra.Command

	configPath string
	debug      bool
	settings   *config.Settings
	logCloser  io.Closer

	importURL  string
	importUser string
	target     roster.Target
}

func newCLI() *cli {
	c := &cli{}

	c.root = &cobra.Command{
		Use:               config.CmdRoot,
		Short:             config.CmdDescRoot,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE:              c.runServe,
	}
	c.root.PersistentFlags().StringVar(&c.configPath, config.FlagConfig, "", config.FlagDescConfig)
	c.root.PersistentFlags().BoolVar(&c.debug, config.FlagDebug, false, config.FlagDescDebug)

	importCmd := &cobra.Command{
		Use:   config.CmdImport,
		Short: config.CmdDescImp,
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runImport,
	}
	importCmd.Flags().StringVar(&c.importURL, config.FlagURL, "", config.FlagDescURL)
	importCmd.Flags().StringVar(&c.importUser, config.FlagUser, "", config.FlagDescUser)
	importCmd.Flags().StringVar(&c.target.GroupID, config.FlagGroupID, "", config.FlagDescGroupID)
	importCmd.Flags().StringVar(&c.target.GroupName, config.FlagGroupName, "", config.FlagDescGroupNm)
	importCmd.Flags().StringVar(&c.target.Role, config.FlagRole, "", config.FlagDescRole)
	_ = importCmd.MarkFlagRequired(config.FlagGroupID)
	_ = importCmd.MarkFlagRequired(config.FlagGroupName)

	c.root.AddCommand(
		&cobra.Command{
			Use:   config.CmdServe,
			Short: config.CmdDescServe,
			Args:  cobra.NoArgs,
			RunE:  c.runServe,
		},
		&cobra.Command{
			Use:   config.CmdScan,
			Short: config.CmdDescScan,
			Args:  cobra.NoArgs,
			RunE:  c.runScan,
		},
		&cobra.Command{
			Use:   config.CmdGroups,
			Short: config.CmdDescGroup,
			Args:  cobra.NoArgs,
			RunE:  c.runGroups,
		},
		importCmd,
		&cobra.Command{
			Use:   config.CmdPreview,
			Short: config.CmdDescPrev,
			Args:  cobra.ExactArgs(1),
			RunE:  c.runPreview,
		},
		&cobra.Command{
			Use:   config.CmdVersion,
			Short: config.CmdDescVer,
			Args:  cobra.NoArgs,
			// Overrides the root hook: printing the version needs no settings.
			PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
			Run: func(cmd *cobra.Command, _ []string) {
				printVersion(cmd.OutOrStdout())
			},
		},
	)
	return c
}

// setup loads the settings and configures logging before any command runs.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	s, err := config.LoadSettings(c.configPath)
	if err != nil {
		return err
	}
	c.settings = s
	c.logCloser = setupLogging(c.debug, s.DataDir)
	logStartupInfo(cmd.Name())
	return nil
}

func (c *cli) close() {
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	b, err := newBot(cmd.Context(), c.settings, c.debug)
	if err != nil {
		return err
	}
	defer b.close()
	return b.serve(cmd.Context())
}

func (c *cli) runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := newBot(ctx, c.settings, c.debug)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.connect(ctx); err != nil {
		return err
	}
	sum, err := b.scanner.Run(ctx, config.TriggerCLI)
	fmt.Fprintf(cmd.OutOrStdout(), config.RespScanDone+"\n",
		sum.DayKey, sum.Matches, sum.Sent, sum.Skipped, sum.Failed)
	return err
}

func (c *cli) runGroups(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	b, err := newBot(ctx, c.settings, c.debug)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.connect(ctx); err != nil {
		return err
	}
	groups, err := b.lifecycle.ListGroups(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, g := range groups {
		fmt.Fprintf(out, config.MsgGroupLine, i+1, g.Name, g.ID, g.Members)
	}
	return nil
}

func (c *cli) runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if (len(args) == 1) == (c.importURL != "") {
		return errors.New(config.ErrImportSource)
	}

	store := roster.NewStore(c.settings.RosterFile)
	var (
		stats roster.ImportStats
		err   error
	)
	if c.importURL != "" {
		src := roster.Source{URL: c.importURL, User: c.importUser, Password: config.VCardPassword(c.importUser)}
		stats, err = store.ImportFrom(ctx, roster.NewHTTPFetcher(), src, c.target)
	} else {
		stats, err = importFile(ctx, store, args[0], c.target)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), config.MsgImportOutput, stats.Imported, stats.Skipped+stats.Duplicate, store.Path())
	return nil
}

func importFile(ctx context.Context, store *roster.Store, path string, target roster.Target) (roster.ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return roster.ImportStats{}, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
	}
	defer f.Close()
	return store.Import(ctx, f, target)
}

func (c *cli) runPreview(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		return errors.New(config.ErrPreviewIndex)
	}

	b, err := newBot(cmd.Context(), c.settings, c.debug)
	if err != nil {
		return err
	}
	defer b.close()

	text, err := b.preview(cmd.Context(), index)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
