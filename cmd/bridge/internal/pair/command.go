package pair

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"go_bridge/internal/app"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/config"
	"go_bridge/internal/logger"
)

const adminTimeout = 30 * time.Second

type options struct {
	instance int64
	room     int64
	chat     int64
	thread   int64

	forwardMode   string
	nicknameMode  string
	apiKey        string
	ignorePattern string
	ignoreSenders []string
	noRecall      bool
	noRichHeader  bool
}

func NewPairCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage room pairs without going through Telegram",
		Example: `  bridge pair list --instance 0
  bridge pair bind --instance 0 --room 123456 --chat -1001234567890 --thread 42
  bridge pair unbind --instance 0 --room 123456`,
	}
	cmd.PersistentFlags().Int64Var(&opts.instance, "instance", 0, "Tenant instance id")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pairs of an instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd.Context(), opts.instance, func(ctx context.Context, admin *app.PairAdmin) error {
				printPairs(cmd.OutOrStdout(), admin.Registry.Pairs())
				return nil
			})
		},
	}

	bindCmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind a Side A room to a Telegram chat (and topic)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var threadID *int64
			if cmd.Flags().Changed("thread") {
				threadID = &opts.thread
			}
			return withAdmin(cmd.Context(), opts.instance, func(ctx context.Context, admin *app.PairAdmin) error {
				pair, err := admin.Registry.Bind(ctx, opts.room, opts.chat, threadID)
				if err != nil {
					return err
				}
				if pair.SideARoomID != opts.room {
					return fmt.Errorf("target already bound: %s", formatPair(pair))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bound %s\n", formatPair(pair))
				return nil
			})
		},
	}
	bindCmd.Flags().Int64Var(&opts.room, "room", 0, "Side A group id")
	bindCmd.Flags().Int64Var(&opts.chat, "chat", 0, "Telegram chat id")
	bindCmd.Flags().Int64Var(&opts.thread, "thread", 0, "Telegram topic id")
	_ = bindCmd.MarkFlagRequired("room")
	_ = bindCmd.MarkFlagRequired("chat")

	unbindCmd := &cobra.Command{
		Use:   "unbind",
		Short: "Remove the pair of a Side A room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAdmin(cmd.Context(), opts.instance, func(ctx context.Context, admin *app.PairAdmin) error {
				removed, err := admin.Registry.Unbind(ctx, opts.room)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "room %d was not bound\n", opts.room)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unbound room %d\n", opts.room)
				return nil
			})
		},
	}
	unbindCmd.Flags().Int64Var(&opts.room, "room", 0, "Side A group id")
	_ = unbindCmd.MarkFlagRequired("room")

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change per-pair settings (only the given flags are applied)",
		Args:  cobra.NoArgs,
		Example: `  bridge pair set --instance 0 --room 123456 --forward-mode 10
  bridge pair set --instance 0 --room 123456 --no-recall --ignore-sender 10000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.ignorePattern != "" {
				if _, err := regexp.Compile(opts.ignorePattern); err != nil {
					return fmt.Errorf("invalid --ignore-pattern: %w", err)
				}
			}
			mutate := settingsMutator(cmd.Flags().Changed, opts)
			return withAdmin(cmd.Context(), opts.instance, func(ctx context.Context, admin *app.PairAdmin) error {
				pair, err := admin.Registry.Configure(ctx, opts.room, mutate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", formatPair(pair))
				return nil
			})
		},
	}
	setCmd.Flags().Int64Var(&opts.room, "room", 0, "Side A group id")
	setCmd.Flags().StringVar(&opts.forwardMode, "forward-mode", "", "Direction override, e.g. 10 (empty clears)")
	setCmd.Flags().StringVar(&opts.nicknameMode, "nickname-mode", "", "Nickname override, e.g. 01 (empty clears)")
	setCmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Rich header capability key")
	setCmd.Flags().StringVar(&opts.ignorePattern, "ignore-pattern", "", "Regexp; matching text is not forwarded")
	setCmd.Flags().StringSliceVar(&opts.ignoreSenders, "ignore-sender", nil, "Sender ids that are never forwarded")
	setCmd.Flags().BoolVar(&opts.noRecall, "no-recall", false, "Do not propagate recalls")
	setCmd.Flags().BoolVar(&opts.noRichHeader, "no-rich-header", false, "Never render rich headers")
	_ = setCmd.MarkFlagRequired("room")

	cmd.AddCommand(listCmd, bindCmd, unbindCmd, setCmd)

	return cmd
}

// settingsMutator 只应用命令行里出现过的设置
func settingsMutator(changed func(name string) bool, opts options) func(*models.ForwardPair) {
	return func(p *models.ForwardPair) {
		if changed("forward-mode") {
			p.ForwardMode = opts.forwardMode
		}
		if changed("nickname-mode") {
			p.NicknameMode = opts.nicknameMode
		}
		if changed("api-key") {
			p.APIKey = opts.apiKey
		}
		if changed("ignore-pattern") {
			p.IgnorePattern = opts.ignorePattern
		}
		if changed("ignore-sender") {
			p.IgnoredSenders = opts.ignoreSenders
		}
		if changed("no-recall") {
			p.Flags = setFlag(p.Flags, models.FlagNoRecall, opts.noRecall)
		}
		if changed("no-rich-header") {
			p.Flags = setFlag(p.Flags, models.FlagNoRichHeader, opts.noRichHeader)
		}
	}
}

func setFlag(flags, flag uint32, on bool) uint32 {
	if on {
		return flags | flag
	}
	return flags &^ flag
}

func withAdmin(parent context.Context, instance int64, fn func(context.Context, *app.PairAdmin) error) error {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, adminTimeout)
	defer cancel()

	admin, err := app.OpenPairAdmin(ctx, cfg, instance)
	if err != nil {
		return err
	}
	defer func() {
		if err := admin.Close(context.Background()); err != nil {
			logger.L().Warnf("Failed to close MongoDB: %v", err)
		}
	}()

	return fn(ctx, admin)
}

func printPairs(w io.Writer, pairs []*models.ForwardPair) {
	if len(pairs) == 0 {
		fmt.Fprintln(w, "no pairs")
		return
	}
	for _, p := range pairs {
		fmt.Fprintln(w, formatPair(p))
	}
}

func formatPair(p *models.ForwardPair) string {
	s := fmt.Sprintf("room=%d chat=%d", p.SideARoomID, p.SideBChatID)
	if p.SideBThreadID != nil {
		s += fmt.Sprintf(" thread=%d", *p.SideBThreadID)
	}
	if p.ForwardMode != "" {
		s += " mode=" + p.ForwardMode
	}
	if p.NicknameMode != "" {
		s += " nickname=" + p.NicknameMode
	}
	if p.Flags != 0 {
		s += fmt.Sprintf(" flags=%d", p.Flags)
	}
	if len(p.IgnoredSenders) > 0 || p.IgnorePattern != "" {
		s += " ignore=on"
	}
	return s
}
