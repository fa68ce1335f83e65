package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"apod-go/internal/apod"
	"apod-go/internal/app"
	"apod-go/internal/config"
	"apod-go/internal/encryption"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", apod.ErrorKind(err), err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config, or the default one.
// A missing file yields defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaults["config_path"]
	}

	cfg, err := config.Load(path, defaults["base_dir"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, path, nil
}

// newApp reads the config and creates an APODApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Fetch", "Sync").
func newApp(cmd *cobra.Command, operation string, opts app.Options) (*app.APODApp, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if opts.ImageDir == "" {
		opts.ImageDir, _ = cmd.Flags().GetString("dir")
	}
	opts.Operation = operation

	a, err := app.NewAPODApp(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a close failure unless err is already set.
func closeApp(a *app.APODApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printRecord(r *apod.ImageRecord) {
	fmt.Printf("Hash:        %s\n", r.ContentHash)
	fmt.Printf("APOD date:   %s\n", r.SourceDate)
	if r.Title != "" {
		fmt.Printf("Title:       %s\n", r.Title)
	}
	fmt.Printf("Path:        %s\n", r.LocalPath)
	fmt.Printf("Dimensions:  %dx%d\n", r.WidthPx, r.HeightPx)
	fmt.Printf("Format:      %s (%d bytes)\n", r.MediaType, r.SizeBytes)
	if r.SourceURL != "" {
		fmt.Printf("Source:      %s\n", r.SourceURL)
	}
	fmt.Printf("Stored:      %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
}

var rootCmd = &cobra.Command{
	Use:   "apod IMAGE_DIR [APOD_DATE]",
	Short: "Fetch NASA's Astronomy Picture of the Day and set it as the desktop background",
	Long: `Fetch the Astronomy Picture of the Day for APOD_DATE (YYYY-MM-DD, default today),
store it in IMAGE_DIR unless identical bytes are already there, and set it as
the desktop background.`,
	Args:          cobra.RangeArgs(1, 2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		noWallpaper, _ := cmd.Flags().GetBool("no-wallpaper")

		date := ""
		if len(args) > 1 {
			date = args[1]
		}

		a, err := newApp(cmd, "Fetch", app.Options{
			ImageDir:    args[0],
			NoWallpaper: noWallpaper,
			Parameters:  date,
		})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if date == "" {
			date = a.Service().Today()
		}
		fmt.Printf("APOD date:   %s\n", date)
		fmt.Printf("Images dir:  %s\n", a.ImageDir())

		result, err := a.Fetch(cmd.Context(), date)
		if result != nil {
			r := result.Record
			fmt.Printf("Image URL:   %s\n", r.SourceURL)
			fmt.Printf("Saved to:    %s\n", r.LocalPath)
			fmt.Printf("Dimensions:  %dx%d\n", r.WidthPx, r.HeightPx)
			fmt.Printf("Hash:        %s\n", r.ContentHash)
			fmt.Printf("Cache hit:   %t\n", result.CacheHit)
		}
		return err
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

		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = defaults["config_path"]
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Host ID:     %s\n", cfg.HostID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Log Level:   %s\n", cfg.LogLevel)
		fmt.Printf("Image Dir:   %s\n", cfg.ImageDir)
		fmt.Printf("Provider:    %s %s (hd=%t)\n", cfg.Provider.Type, cfg.Provider.Endpoint, cfg.Provider.HD)
		fmt.Printf("Wallpaper:   %s\n", cfg.Wallpaper.Type)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Mirror:      %s\n", cfg.Mirror.Type)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage mirror encryption",
}

var encryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the mirror encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if enc == nil {
			return fmt.Errorf("encryption type is %q: set [encryption] type = \"age\" first", cfg.Encryption.Type)
		}
		if enc.IsConfigured() {
			return encryption.ErrAlreadyConfigured
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return errors.New("passphrases do not match")
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}

		fmt.Println("Encryption key pair created.")
		if age, ok := enc.(*encryption.AgeEncryptor); ok {
			if recipient, err := age.Recipient(); err == nil {
				fmt.Printf("Public key: %s\n", recipient)
			}
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show HASH|DATE",
	Short: "Show stored images by content hash or APOD date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Show", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		records, err := a.Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No images stored for that date.")
			return nil
		}
		for i, r := range records {
			if i > 0 {
				fmt.Println()
			}
			printRecord(r)
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored images, newest first",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "List", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		records, err := a.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No images stored.")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s  %5dx%-5d  %s\n", r.ContentHash[:12], r.SourceDate, r.WidthPx, r.HeightPx, r.Title)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		ops, err := a.GetHistory(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %-10s  %s  %-8s  %s\n",
				op.ID,
				op.Operation,
				op.Parameters,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check stored images against their content hashes",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Verify", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		issues, err := a.Verify(cmd.Context())
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			fmt.Println("All images verified.")
			return nil
		}
		for _, issue := range issues {
			fmt.Printf("%-14s  %s\n", issue.Problem, issue.Path)
		}
		return fmt.Errorf("%d problem(s) found", len(issues))
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload stored images missing from the mirror",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "Sync", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		n, err := a.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %d image(s)\n", n)
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore HASH",
	Short: "Restore a missing or corrupt image from the mirror",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		hash := args[0]
		if !apod.IsContentHash(hash) {
			return fmt.Errorf("%q is not a content hash", hash)
		}

		a, err := newApp(cmd, "Restore", app.Options{Parameters: hash})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		passphrase := ""
		if a.NeedsPassphrase() {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		restored, err := a.Restore(cmd.Context(), hash, passphrase)
		if err != nil {
			return err
		}
		if restored {
			fmt.Printf("Restored %s\n", hash)
		} else {
			fmt.Printf("%s is intact, nothing to restore\n", hash)
		}
		return nil
	},
}

func addDirFlag(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().StringP("dir", "d", "", "Image directory (default: image_dir from config)")
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: $APOD_CONFIG_PATH or ~/.config/apod.toml)")
	rootCmd.Flags().Bool("no-wallpaper", false, "Store the image without setting the desktop background")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// encryption subcommands
	encryptionCmd.AddCommand(encryptionInitCmd)

	addDirFlag(showCmd, listCmd, historyCmd, verifyCmd, syncCmd, restoreCmd)
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of images to show (0 for all)")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(restoreCmd)
}
