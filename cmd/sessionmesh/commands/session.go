package commands

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/sessionmesh"
	"github.com/hupe1980/sessionmesh/config"
	"github.com/hupe1980/sessionmesh/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var errNotFound = errors.New("session not found")

// openManager loads the configuration, builds the handler chain and opens
// the configured session space. The returned func closes everything.
func openManager(cmd *cobra.Command) (*sessionmesh.Manager, *config.Config, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, logCloser, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	m, err := config.Build(cmd.Context(), cfg, func(o *config.BuildOptions) {
		o.Logger = logger.WithComponent("cli")
		// One-shot commands have nobody scraping metrics.
		o.Registerer = prometheus.NewRegistry()
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, nil, nil, err
	}
	cleanup := func() {
		m.Close()
		_ = logCloser.Close()
	}

	if !m.Open(cfg.Session.SavePath, cfg.Session.Name) {
		cleanup()
		return nil, nil, nil, fmt.Errorf("failed to open session space %q", cfg.Session.Name)
	}
	return m, cfg, cleanup, nil
}

func idArg(args []string) (string, error) {
	if !session.ValidID(args[0]) {
		return "", fmt.Errorf("%w: %q", session.ErrInvalidID, args[0])
	}
	return args[0], nil
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a session payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := idArg(args)
		if err != nil {
			return err
		}
		m, _, cleanup, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		data := m.Read(id)
		if data == "" {
			return errNotFound
		}
		fmt.Fprintln(cmd.OutOrStdout(), data)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <id> [payload]",
	Short: "Store a session payload",
	Long: `Store a session payload through the configured handler chain.

The payload is read from standard input when omitted.

Examples:
  sessionmesh put 4f1c2a counter=1
  echo -n counter=1 | sessionmesh put 4f1c2a`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := idArg(args)
		if err != nil {
			return err
		}
		var data string
		if len(args) == 2 {
			data = args[1]
		} else {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			data = string(raw)
		}

		m, _, cleanup, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if !m.Write(id, data) {
			return fmt.Errorf("failed to write session %q", id)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Destroy a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := idArg(args)
		if err != nil {
			return err
		}
		m, _, cleanup, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if !m.Destroy(id) {
			return fmt.Errorf("failed to destroy session %q", id)
		}
		return nil
	},
}

var gcMaxLifetime time.Duration

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Collect expired sessions",
	Long: `Collect sessions older than the maximum lifetime.

Defaults to session.max_lifetime from the configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cfg, cleanup, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		maxLifetime := cfg.Session.MaxLifetime
		if gcMaxLifetime > 0 {
			maxLifetime = gcMaxLifetime
		}
		if !m.GC(int(maxLifetime / time.Second)) {
			return errors.New("session gc failed")
		}
		return nil
	},
}

func init() {
	gcCmd.Flags().DurationVar(&gcMaxLifetime, "max-lifetime", 0, "Override session.max_lifetime")
}
