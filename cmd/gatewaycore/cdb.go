package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ar-io/gatewaycore/internal/cdb"
)

// cdbBuildRecord is one line of a newline-delimited JSON build input:
// {"dataItemId": "<base64url 43-char>", "rootTxId": "<base64url 43-char>",
//  "rootDataItemOffset": 1234, "rootDataOffset": 5678}. The offset fields
// are optional; omitting both produces a "simple" record.
type cdbBuildRecord struct {
	DataItemID         string `json:"dataItemId"`
	RootTxID           string `json:"rootTxId"`
	RootDataItemOffset *int64 `json:"rootDataItemOffset,omitempty"`
	RootDataOffset     *int64 `json:"rootDataOffset,omitempty"`
}

func cdbCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cdb", Short: "Build and inspect CDB64 index files"}
	cmd.AddCommand(cdbBuildCmd())
	cmd.AddCommand(cdbInspectCmd())
	return cmd
}

func cdbBuildCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a CDB64 file from newline-delimited JSON records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCDBBuild(input, output)
		},
	}
	cmd.Flags().StringVar(&input, "input", "-", "input NDJSON file, '-' for stdin")
	cmd.Flags().StringVar(&output, "output", "", "output .cdb file path")
	cmd.MarkFlagRequired("output")
	return cmd
}

func runCDBBuild(input, output string) error {
	in := os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	w, err := cdb.NewWriter(output)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}

	count := 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec cdbBuildRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			w.Abort()
			return fmt.Errorf("parse record %d: %w", count+1, err)
		}

		key, err := base64.RawURLEncoding.DecodeString(rec.DataItemID)
		if err != nil {
			w.Abort()
			return fmt.Errorf("record %d: decode dataItemId: %w", count+1, err)
		}
		rootTxID, err := base64.RawURLEncoding.DecodeString(rec.RootTxID)
		if err != nil {
			w.Abort()
			return fmt.Errorf("record %d: decode rootTxId: %w", count+1, err)
		}

		var v cdb.Value
		copy(v.RootTxID[:], rootTxID)
		v.RootDataItemOffset = rec.RootDataItemOffset
		v.RootDataOffset = rec.RootDataOffset

		val, err := cdb.Encode(v)
		if err != nil {
			w.Abort()
			return fmt.Errorf("record %d: encode value: %w", count+1, err)
		}
		if err := w.Put(key, val); err != nil {
			w.Abort()
			return fmt.Errorf("record %d: put: %w", count+1, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		w.Abort()
		return err
	}

	if err := w.Finalize(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %d records to %s\n", count, output)
	return nil
}

func cdbInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <path-to.cdb> <base64url-key>",
		Short: "Look up a single key in a CDB64 file and print its decoded value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCDBInspect(args[0], args[1])
		},
	}
	return cmd
}

func runCDBInspect(path, keyB64 string) error {
	key, err := base64.RawURLEncoding.DecodeString(keyB64)
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	r, err := cdb.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	v, ok, err := r.GetValue(key)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(os.Stdout, "not found")
		return nil
	}

	out, err := json.MarshalIndent(struct {
		RootTxID           string `json:"rootTxId"`
		RootDataItemOffset *int64 `json:"rootDataItemOffset,omitempty"`
		RootDataOffset     *int64 `json:"rootDataOffset,omitempty"`
		Complete           bool   `json:"complete"`
	}{
		RootTxID:           base64.RawURLEncoding.EncodeToString(v.RootTxID[:]),
		RootDataItemOffset: v.RootDataItemOffset,
		RootDataOffset:     v.RootDataOffset,
		Complete:           v.Complete(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
