package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ha1tch/doxstorr/internal/schema"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		schemaFile, _ := cmd.Flags().GetString("schema")
		enforce, _ := cmd.Flags().GetBool("enforce-schema")

		var fields map[string]schema.FieldDefinition
		if schemaFile != "" {
			raw, err := readFileOrStdin(schemaFile)
			if err != nil {
				return fmt.Errorf("reading schema: %w", err)
			}
			if err := json.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("parsing schema: %w", err)
			}
		}

		id, err := e.CreateCollection(args[0], fields, nil, enforce)
		if err != nil {
			return err
		}
		fmt.Printf("created collection %q (id=%d)\n", args[0], id)
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		colls, err := e.ListCollections()
		if err != nil {
			return err
		}
		for _, c := range colls {
			fmt.Printf("%-6d %-24s documents=%d enforce-schema=%v\n", c.ID, c.Name, c.DocumentCount, c.EnforceSchema)
		}
		return nil
	},
}

func init() {
	collectionCreateCmd.Flags().String("schema", "", "path to a JSON schema file (map of field name to definition), - for stdin")
	collectionCreateCmd.Flags().Bool("enforce-schema", false, "reject documents that don't satisfy the schema")
	collectionCmd.AddCommand(collectionCreateCmd, collectionListCmd)
}
