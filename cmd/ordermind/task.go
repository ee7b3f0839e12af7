package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rahul/ordermind/internal/workflow"
)

func (c *TaskGetCmd) Run(cli *CLI) error {
	a, err := openApp(cli.loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.engine.Get(context.Background(), c.ID)
	if err != nil {
		return err
	}
	return printJSON(task.Summary())
}

func (c *TaskConfirmCmd) Run(cli *CLI) error {
	expected, ok := workflow.ParseStep(c.Expected)
	if !ok {
		return fmt.Errorf("unknown step %q", c.Expected)
	}
	a, err := openApp(cli.loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.engine.Confirm(context.Background(), c.ID, expected)
	if err != nil {
		return err
	}
	return printJSON(task.Summary())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
