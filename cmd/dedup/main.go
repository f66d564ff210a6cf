package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/spf13/cobra"

	"dedup-go/internal/app"
	"dedup-go/internal/config"
	"dedup-go/internal/creds"
	"dedup-go/internal/dedup"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext returns a context cancelled on SIGINT/SIGTERM, so a run
// stops admitting new files and exits after in-flight work finishes.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readConfig loads the config from the default (or overridden) location.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// needsStore triggers credential resolution; a passphrase is prompted for
// only when the encrypted credential store will actually be used.
func newApp(ctx context.Context, needsStore, verbose bool) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	// Stored credentials take priority over the environment, so the
	// passphrase is prompted for whenever a credential file exists.
	passphrase := ""
	if needsStore && cfg.Store.Type == "s3" {
		store := creds.NewFileStore(cfg.Credentials)
		if store.HasStored() {
			passphrase, err = promptSecret("Passphrase: ")
			if err != nil {
				return nil, err
			}
		}
	}

	a, err := app.New(ctx, cfg, app.Options{
		NeedsStore: needsStore,
		Passphrase: passphrase,
		Verbose:    verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// promptSecret reads a line without echo when stdin is a terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// resultPrinter returns an OnResult callback that prints one glyph line
// per file when verbose is set.
func resultPrinter(verbose bool) func(dedup.Result) {
	if !verbose {
		return nil
	}
	return func(r dedup.Result) {
		if r.Err != nil {
			fmt.Printf("%s %s: %v\n", r.Outcome.Glyph(), r.Path, r.Err)
			return
		}
		fmt.Printf("%s %s\n", r.Outcome.Glyph(), r.Path)
	}
}

// printSummary prints per-outcome counts and the first few errors.
func printSummary(s *dedup.Summary) {
	fmt.Printf("\nProcessed %d file(s)\n", s.Total())
	for _, o := range s.Outcomes() {
		fmt.Printf("  %-20s %d\n", o.String(), s.Counts[o])
	}

	errs := s.FirstErrors(5)
	if len(errs) == 0 {
		return
	}
	fmt.Printf("\nFirst %d error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Printf("  %s: %s\n", e.Path, e.Message)
	}
	if remaining := s.Counts[dedup.OutcomeError] - len(errs); remaining > 0 {
		fmt.Printf("  ... and %d more (see log)\n", remaining)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Deduplicating drive backup to a remote object store",
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload SOURCE",
	Short: "Hash and upload a drive, deduplicating by content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driveName, _ := cmd.Flags().GetString("drive-name")
		driveRoot, _ := cmd.Flags().GetString("drive-root")
		scanOnly, _ := cmd.Flags().GetBool("scan-only")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		workers, _ := cmd.Flags().GetInt("workers")
		refreshCount, _ := cmd.Flags().GetBool("refresh-count")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if scanOnly && dryRun {
			fmt.Println("Note: --dry-run is ignored in --scan-only mode")
		}

		ctx, stop := commandContext()
		defer stop()

		a, err := newApp(ctx, !scanOnly, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		total, cached, err := a.CountFiles(ctx, driveName, args[0], refreshCount)
		if err != nil {
			return err
		}
		if cached {
			fmt.Printf("Using cached file count: %d files (use --refresh-count to force re-count)\n", total)
		} else {
			fmt.Printf("Total: %d files\n", total)
		}

		summary, err := a.Upload(ctx, dedup.UploadOptions{
			Source:    args[0],
			DriveName: driveName,
			DriveRoot: driveRoot,
			ScanOnly:  scanOnly,
			DryRun:    dryRun,
			Workers:   a.Workers(workers),
			OnResult:  resultPrinter(verbose),
		})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download PREFIX",
	Short: "Download everything under a remote prefix, resolving pointers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		workers, _ := cmd.Flags().GetInt("workers")
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx, stop := commandContext()
		defer stop()

		a, err := newApp(ctx, true, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Download(ctx, dedup.DownloadOptions{
			Prefix:   args[0],
			Dest:     dest,
			DryRun:   dryRun,
			Workers:  a.Workers(workers),
			OnResult: resultPrinter(verbose),
		})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

// rescan command
var rescanCmd = &cobra.Command{
	Use:   "rescan SOURCE",
	Short: "Refresh stored metadata for already-tracked files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driveName, _ := cmd.Flags().GetString("drive-name")
		workers, _ := cmd.Flags().GetInt("workers")
		verbose, _ := cmd.Flags().GetBool("verbose")

		ctx, stop := commandContext()
		defer stop()

		a, err := newApp(ctx, false, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Rescan(ctx, dedup.RescanOptions{
			Source:    args[0],
			DriveName: driveName,
			Workers:   a.Workers(workers),
			OnResult:  resultPrinter(verbose),
		})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore selected records from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		ids, _ := cmd.Flags().GetStringArray("id")
		prefixes, _ := cmd.Flags().GetStringArray("prefix")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if len(ids) == 0 && len(prefixes) == 0 {
			return fmt.Errorf("nothing selected: pass --id and/or --prefix")
		}

		sel := dedup.Selection{RecordIDs: ids}
		for _, p := range prefixes {
			drive, path, ok := strings.Cut(p, ":")
			if !ok {
				return fmt.Errorf("invalid prefix %q: want DRIVE:PATH", p)
			}
			sel.Prefixes = append(sel.Prefixes, dedup.PrefixSelector{Drive: drive, Prefix: path})
		}

		ctx, stop := commandContext()
		defer stop()

		a, err := newApp(ctx, true, verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		resolved, err := a.ResolveSelection(ctx, sel)
		if err != nil {
			return err
		}
		fmt.Printf("Restoring %d file(s) to %s\n", len(resolved), dest)

		summary, err := a.RestoreSelection(ctx, resolved, dest, func(done, total int) {
			if verbose {
				fmt.Printf("  %d/%d\n", done, total)
			}
		})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

// group command
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage named groups of indexed files",
}

// withIndexApp runs fn with an App wired without a remote store.
func withIndexApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := commandContext()
	defer stop()

	a, err := newApp(ctx, false, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

// requireGroup looks up a group by name, failing when it does not exist.
func requireGroup(ctx context.Context, a *app.App, name string) (*dedup.Group, error) {
	g, err := a.Index().FindGroupByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("no group named %q", name)
	}
	return g, nil
}

var groupCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			g, err := a.Index().CreateGroup(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created group %s (%s)\n", g.Name, g.ID)
			return nil
		})
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a group (members stay indexed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			if err := a.Index().DeleteGroup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted group %s\n", args[0])
			return nil
		})
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			groups, err := a.Index().ListGroups(ctx)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No groups.")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%-30s %4d member(s)  created %s\n",
					g.Name, g.MemberCount, g.CreatedAt.Format("2006-01-02"))
			}
			return nil
		})
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add NAME ID...",
	Short: "Add records to a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			g, err := requireGroup(ctx, a, args[0])
			if err != nil {
				return err
			}
			added, err := a.Index().AddToGroup(ctx, g.ID, args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("Added %d record(s) to %s\n", added, g.Name)
			return nil
		})
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove NAME ID...",
	Short: "Remove records from a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			g, err := requireGroup(ctx, a, args[0])
			if err != nil {
				return err
			}
			removed, err := a.Index().RemoveFromGroup(ctx, g.ID, args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d record(s) from %s\n", removed, g.Name)
			return nil
		})
	},
}

var groupShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "List the members of a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIndexApp(func(ctx context.Context, a *app.App) error {
			g, err := requireGroup(ctx, a, args[0])
			if err != nil {
				return err
			}
			members, err := a.Index().ListGroupMembers(ctx, g.ID)
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Println("Group is empty.")
				return nil
			}
			for _, m := range members {
				marker := " "
				if m.IsOriginal {
					marker = "*"
				}
				fmt.Printf("%s %s  %s/%s  %d bytes\n", marker, m.ID, m.DriveName, m.FilePath, m.Size)
			}
			return nil
		})
	},
}

// auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
}

var authInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair protecting stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		store := creds.NewFileStore(cfg.Credentials)
		if store.IsConfigured() {
			return fmt.Errorf("credential keys already exist")
		}

		pass, err := promptSecret("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptSecret("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := store.Setup(pass); err != nil {
			return err
		}
		fmt.Println("Credential keys generated.")
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store API credentials, encrypted at rest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		store := creds.NewFileStore(cfg.Credentials)
		if !store.IsConfigured() {
			return fmt.Errorf("no credential keys: run 'dedup auth init' first")
		}

		keyID, err := promptLine("Key ID: ")
		if err != nil {
			return err
		}
		appKey, err := promptSecret("Application key: ")
		if err != nil {
			return err
		}

		if err := store.Save(creds.Credentials{KeyID: keyID, AppKey: appKey}); err != nil {
			return err
		}
		fmt.Println("Credentials stored.")
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Store:      %s", cfg.Store.Type)
		if cfg.Store.Type == "s3" {
			fmt.Printf(" (bucket %s)", cfg.Store.Bucket)
		}
		fmt.Println()
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("drive-name", "", "Drive name used as the remote key namespace (required)")
	uploadCmd.MarkFlagRequired("drive-name")
	uploadCmd.Flags().String("drive-root", "", "Optional remote sub-prefix within the drive")
	uploadCmd.Flags().Bool("scan-only", false, "Only build the hash index, no store access")
	uploadCmd.Flags().Bool("dry-run", false, "Simulate full mode without writing to the store")
	uploadCmd.Flags().Bool("refresh-count", false, "Force re-count files (ignore cache)")
	uploadCmd.Flags().Int("workers", 0, "Parallel workers (default from config)")
	uploadCmd.Flags().BoolP("verbose", "v", false, "Show each file being processed")

	downloadCmd.Flags().String("dest", "", "Local destination directory (required)")
	downloadCmd.MarkFlagRequired("dest")
	downloadCmd.Flags().Bool("dry-run", false, "List what would be downloaded")
	downloadCmd.Flags().Int("workers", 0, "Parallel workers (default from config)")
	downloadCmd.Flags().BoolP("verbose", "v", false, "Show each file being processed")

	rescanCmd.Flags().String("drive-name", "", "Drive name the files were indexed under (required)")
	rescanCmd.MarkFlagRequired("drive-name")
	rescanCmd.Flags().Int("workers", 0, "Parallel workers (default from config)")
	rescanCmd.Flags().BoolP("verbose", "v", false, "Show each file being processed")

	restoreCmd.Flags().String("dest", "", "Local destination directory (required)")
	restoreCmd.MarkFlagRequired("dest")
	restoreCmd.Flags().StringArray("id", nil, "Record id to restore (repeatable)")
	restoreCmd.Flags().StringArray("prefix", nil, "DRIVE:PATH directory to restore (repeatable)")
	restoreCmd.Flags().BoolP("verbose", "v", false, "Show restore progress")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupDeleteCmd)
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupAddCmd)
	groupCmd.AddCommand(groupRemoveCmd)
	groupCmd.AddCommand(groupShowCmd)

	authCmd.AddCommand(authInitCmd)
	authCmd.AddCommand(authLoginCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
}
