package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <collection>",
	Short: "List every document in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		coll, err := e.GetCollectionByName(args[0])
		if err != nil {
			return err
		}
		docs, err := e.QueryDocuments(coll.ID, nil)
		if err != nil {
			return err
		}
		for _, d := range docs {
			fmt.Printf("--- document %d ---\n", d.ID)
			if err := printJSON(d); err != nil {
				return err
			}
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <index> <query>",
	Short: "Run a full-text search against a text index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ids, err := e.TextSearch(args[0], args[1])
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	queryCmd.AddCommand(searchCmd)
}
