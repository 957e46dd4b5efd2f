package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// jsonRequested reports whether the command should print JSON.
func jsonRequested(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// printJSON writes v as indented JSON, or the results of the --jq filter
// applied to it, one per line.
func printJSON(c *cli.Context, v interface{}) error {
	filter := c.String("jq")
	if filter == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}
	return runJQ(c.App.Writer, filter, v)
}

func runJQ(w io.Writer, filter string, v interface{}) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq only accepts plain JSON values
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		if s, isString := result.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		out, err := gojq.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode jq result: %w", err)
		}
		fmt.Fprintln(w, string(out))
	}
}
