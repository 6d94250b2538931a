package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and manage the local model catalog",
	}
	cmd.AddCommand(newModelsListCommand())
	cmd.AddCommand(newModelsShowCommand())
	cmd.AddCommand(newModelsAliasCommand())
	cmd.AddCommand(newModelsDeleteCommand())
	cmd.AddCommand(newModelsLoadCommand())
	cmd.AddCommand(newModelsUnloadCommand())
	cmd.AddCommand(newModelsLoadedCommand())
	return cmd
}

func newModelsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all downloaded models",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			models, err := d.repo.List()
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Printf("%s\t%s\t%s\n", m.ID, m.Type, m.Format)
			}
			return nil
		},
	}
}

func newModelsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <idOrAlias>",
		Short: "Show a model's catalog metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			m, err := d.repo.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", *m)
			return nil
		},
	}
}

func newModelsAliasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "alias <id> <alias>",
		Short: "Assign an alias to a model id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			return d.repo.SetAlias(args[0], args[1])
		},
	}
}

func newModelsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <idOrAlias>",
		Short: "Delete a model's metadata and weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			return d.repo.Delete(args[0])
		},
	}
}

func newModelsLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <idOrAlias>",
		Short: "Load a model into memory via its adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			if _, err := d.loader.Load(context.Background(), args[0], nil); err != nil {
				return err
			}
			fmt.Println("loaded")
			return nil
		},
	}
}

func newModelsUnloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unload <idOrAlias>",
		Short: "Unload a model from memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			m, err := d.repo.Get(args[0])
			if err != nil {
				return err
			}
			if err := d.loader.Unload(m.ID); err != nil {
				return err
			}
			fmt.Println("unloaded")
			return nil
		},
	}
}

func newModelsLoadedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "loaded",
		Short: "List currently loaded models",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := buildDeps(nil)
			if err != nil {
				return err
			}
			for _, id := range d.loader.Loaded() {
				fmt.Println(id)
			}
			return nil
		},
	}
}
