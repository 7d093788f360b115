package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	doxstorr "github.com/ha1tch/doxstorr"
)

// txBatch is the on-disk shape of the file passed to `tx run`: a list
// of operations, each naming a collection (by name, resolved below)
// and carrying the data an add/update needs.
type txBatch struct {
	Operations []txOperation `json:"operations"`
}

type txOperation struct {
	Type       string         `json:"type"` // add, update, delete
	Collection string         `json:"collection,omitempty"`
	DocID      int64          `json:"doc_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Run a batch of operations as a single atomic transaction",
}

var txRunCmd = &cobra.Command{
	Use:   "run <json-file-or->",
	Short: "Execute a batch of add/update/delete operations atomically",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readFileOrStdin(args[0])
		if err != nil {
			return err
		}
		var batch txBatch
		if err := json.Unmarshal(raw, &batch); err != nil {
			return fmt.Errorf("parsing transaction batch: %w", err)
		}

		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ops := make([]doxstorr.Operation, len(batch.Operations))
		for i, o := range batch.Operations {
			op := doxstorr.Operation{DocID: o.DocID, Data: o.Data}
			switch o.Type {
			case "add":
				op.Type = doxstorr.OpAdd
			case "update":
				op.Type = doxstorr.OpUpdate
			case "delete":
				op.Type = doxstorr.OpDelete
			default:
				return fmt.Errorf("operation %d: unknown type %q", i, o.Type)
			}
			if o.Collection != "" {
				coll, err := e.GetCollectionByName(o.Collection)
				if err != nil {
					return fmt.Errorf("operation %d: %w", i, err)
				}
				op.CollectionID = coll.ID
			}
			ops[i] = op
		}

		results, err := e.AtomicTransactionExecute(ops)
		if err != nil {
			return err
		}
		for i, r := range results {
			fmt.Printf("operation %d: success=%v doc_id=%d\n", i, r.Success, r.DocID)
		}
		return nil
	},
}

func init() {
	txCmd.AddCommand(txRunCmd)
}
