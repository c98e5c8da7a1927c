package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cinnamona/bakery/internal/api"
	"github.com/cinnamona/bakery/internal/auth"
	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/config"
	"github.com/cinnamona/bakery/internal/storage"
)

// loadStore loads and validates config and opens the configured store.
func loadStore() (*storage.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.Config{}, err
	}
	store, err := openStore(cfg, newLogger(cfg.Log))
	if err != nil {
		return nil, config.Config{}, err
	}
	return store, cfg, nil
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed [collection...]",
	Short: "Write the seed data of collections that were never written",
	Long: `Write seed data to the data dir. Without arguments every collection that
has a seed file is seeded. Collections that already exist are left alone
unless --force is given.

Examples:
  bakery seed
  bakery seed products faqs
  bakery seed --force settings`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		store, _, err := loadStore()
		if err != nil {
			return err
		}
		defer store.Close()

		seeded, err := seedCollections(store, args, force)
		if err != nil {
			return err
		}
		if seeded == 0 {
			printStep("Nothing to seed")
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("force", false, "overwrite collections that already exist")
}

func seedCollections(store *storage.Store, names []string, force bool) (int, error) {
	if len(names) == 0 {
		all, err := store.SeedNames()
		if err != nil {
			return 0, fmt.Errorf("listing seeds: %w", err)
		}
		names = all
	}

	seeded := 0
	for _, name := range names {
		ok, err := store.Seed(name, force)
		if err != nil {
			return seeded, fmt.Errorf("seeding %s: %w", name, err)
		}
		if ok {
			seeded++
			printSuccess("Seeded %s", name)
		} else {
			printStep("%s already exists, skipped", name)
		}
	}
	return seeded, nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored collection as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, _, err := loadStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := exportCollections(cmd.Context(), store, w)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d records to %s", n, output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
}

type exportLine struct {
	Collection string         `json:"collection"`
	Data       storage.Record `json:"data"`
}

// exportCollections writes one line per record of every persisted
// collection, in collection name order. Collections are read concurrently.
func exportCollections(ctx context.Context, store *storage.Store, w io.Writer) (int, error) {
	names, err := store.Collections()
	if err != nil {
		return 0, err
	}
	slices.Sort(names)

	results := make([][]storage.Record, len(names))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			if s, ok := catalog.Lookup(name); ok && s.Singleton {
				doc, err := store.GetDocument(name)
				if err != nil {
					return err
				}
				results[i] = []storage.Record{doc}
				return nil
			}
			records, err := store.GetAll(name)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	n := 0
	for i, name := range names {
		for _, rec := range results[i] {
			if err := enc.Encode(exportLine{Collection: name, Data: rec}); err != nil {
				return n, fmt.Errorf("writing export: %w", err)
			}
			n++
		}
	}
	return n, nil
}

// --- hash-password ---

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for auth.admin_password_hash",
	Long: `Print a bcrypt hash of the admin password. The password is read from the
argument or, when omitted, from the first line of stdin.

Example:
  export BAKERY_AUTH_ADMIN_PASSWORD_HASH="$(bakery hash-password)"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func readPassword(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}

// --- orders ---

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List orders from the running server",
	Long: `List orders placed through the site. Logs in with auth.admin_email and the
password from --password or BAKERY_AUTH_ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		password, _ := cmd.Flags().GetString("password")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if password == "" {
			password = cfg.Auth.AdminPassword
		}
		if cfg.Auth.AdminEmail == "" || password == "" {
			return fmt.Errorf("admin email and password are required")
		}

		client := newAPIClient(cfg)
		if err := client.login(cmd.Context(), cfg.Auth.AdminEmail, password); err != nil {
			return err
		}
		return listOrders(cmd.Context(), client, status, cmd.OutOrStdout())
	},
}

func init() {
	ordersCmd.Flags().String("status", "", "only orders with this status, e.g. Pending")
	ordersCmd.Flags().String("password", "", "admin password")
}

type orderSummary struct {
	ID            string  `json:"id"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Customer      string  `json:"customer"`
	Phone         string  `json:"phone"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"createdAt"`
}

func listOrders(ctx context.Context, client *apiClient, status string, out io.Writer) error {
	path := "/api/orders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	var orders []orderSummary
	if err := decodeData(resp, &orders); err != nil {
		return err
	}

	if len(orders) == 0 {
		fmt.Fprintln(out, "No orders found.")
		return nil
	}
	for _, o := range orders {
		fmt.Fprintf(out, "%s  %s  %-20s %10.2f  %s\n",
			colorize(colorCyan, o.InvoiceNumber),
			o.CreatedAt,
			o.Customer,
			o.Total,
			o.Status,
		)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			line := fmt.Sprintf("  %s = %s", colorize(colorBold, k.Key), k.Value)
			if k.EnvSet {
				line += colorize(colorYellow, " (from $"+k.EnvVar+")")
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the catalog over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cfg, err := loadStore()
		if err != nil {
			return err
		}
		defer store.Close()

		logger := newLogger(cfg.Log)
		logger.Info("MCP server started (stdio transport)")
		return server.ServeStdio(api.NewMCPServer(api.MCPDeps{
			Store:   store,
			Logger:  logger,
			Version: version,
		}))
	},
}
