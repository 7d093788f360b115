package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Add, read, update and delete documents",
}

var documentAddCmd = &cobra.Command{
	Use:   "add <collection> <json-file-or->",
	Short: "Add a document to a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readFileOrStdin(args[1])
		if err != nil {
			return err
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing document: %w", err)
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		coll, err := e.GetCollectionByName(args[0])
		if err != nil {
			return err
		}
		id, err := e.AddDocument(coll.ID, data)
		if err != nil {
			return err
		}
		fmt.Printf("added document id=%d\n", id)
		return nil
	},
}

var documentGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a document by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		doc, err := e.GetDocument(id)
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update <id> <json-file-or->",
	Short: "Replace a document's data",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		raw, err := readFileOrStdin(args[1])
		if err != nil {
			return err
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing document: %w", err)
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.UpdateDocument(id, data); err != nil {
			return err
		}
		fmt.Printf("updated document id=%d\n", id)
		return nil
	},
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.DeleteDocument(id); err != nil {
			return err
		}
		fmt.Printf("deleted document id=%d\n", id)
		return nil
	},
}

func init() {
	documentCmd.AddCommand(documentAddCmd, documentGetCmd, documentUpdateCmd, documentDeleteCmd)
}
