package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"topic-chatter/internal/dialog"
	"topic-chatter/internal/storage"
)

type storeFlags struct {
	backend  string
	dir      string
	boltPath string
}

func (f *storeFlags) open() (*dialog.Store, func() error, error) {
	backend, closeFn, err := storage.Open(f.backend, f.dir, f.boltPath)
	if err != nil {
		return nil, nil, err
	}
	return dialog.NewStore(backend, nil), closeFn, nil
}

// withStore opens the store for the duration of run.
func (f *storeFlags) withStore(run func(*dialog.Store) error) error {
	store, closeFn, err := f.open()
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return run(store)
}

func newRootCmd() *cobra.Command {
	flags := &storeFlags{}
	rootCmd := &cobra.Command{
		Use:          "dialogctl",
		Short:        "Inspect and migrate stored dialogs",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.backend, "backend", storage.KindFile, "storage backend: file or bolt")
	rootCmd.PersistentFlags().StringVar(&flags.dir, "dir", "dialogs", "dialog directory for the file backend")
	rootCmd.PersistentFlags().StringVar(&flags.boltPath, "bolt-path", "data/dialogs.bolt", "database path for the bolt backend")

	rootCmd.AddCommand(
		newUsersCmd(flags),
		newTopicsCmd(flags),
		newHistoryCmd(flags),
		newMigrateCmd(flags),
	)
	return rootCmd
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func newUsersCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users with a stored dialog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withStore(func(store *dialog.Store) error {
				ids, err := store.Users()
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newTopicsCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "topics <user-id>",
		Short: "List the topics of a user; the current one is marked with *",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return flags.withStore(func(store *dialog.Store) error {
				d := store.Load(userID)
				for _, name := range d.TopicNames() {
					mark := " "
					if name == d.CurrentTopic {
						mark = "*"
					}
					t := d.Topics[name]
					line := fmt.Sprintf("%s %s (%d messages)", mark, name, len(t.Messages))
					if t.IndexID != "" {
						line += " index=" + t.IndexID
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(flags *storeFlags) *cobra.Command {
	var (
		topic  string
		count  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Print the last messages of a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return flags.withStore(func(store *dialog.Store) error {
				msgs, err := store.LastMessages(userID, count, topic)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(msgs)
				}
				for _, m := range msgs {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.Role, m.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic name (default: current topic)")
	cmd.Flags().IntVar(&count, "count", 15, "number of messages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newMigrateCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite every stored dialog in the current layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withStore(func(store *dialog.Store) error {
				ids, err := store.Users()
				if err != nil {
					return err
				}
				failed := 0
				for _, id := range ids {
					if err := store.Migrate(id); err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "skip %d: %v\n", id, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %d of %d dialogs\n", len(ids)-failed, len(ids))
				if failed > 0 {
					return fmt.Errorf("%d dialogs could not be migrated", failed)
				}
				return nil
			})
		},
	}
}
