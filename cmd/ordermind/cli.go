package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Config string `short:"c" default:"config.json" type:"path" help:"Config file (.json or .yaml)"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the chat gateways, HTTP API and reminder scheduler"`
	Chat    ChatCmd    `cmd:"" help:"Talk to the agent from the terminal"`
	Task    TaskCmd    `cmd:"" help:"Inspect or confirm remittance tasks"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// ServeCmd runs the long-lived service.
type ServeCmd struct {
	Addr      string `help:"HTTP listen address (overrides config)"`
	NoStatus  bool   `help:"Disable the live status line"`
	NoGateway bool   `help:"Do not start Telegram or Discord gateways"`
}

// ChatCmd runs a terminal conversation.
type ChatCmd struct {
	Session string `short:"s" default:"local" help:"Conversation id; history is kept per id"`
	Reset   bool   `help:"Clear the session history before starting"`
}

// TaskCmd groups the workflow task commands.
type TaskCmd struct {
	Get     TaskGetCmd     `cmd:"" help:"Show a task"`
	Confirm TaskConfirmCmd `cmd:"" help:"Confirm the current step of a task"`
}

type TaskGetCmd struct {
	ID string `arg:"" help:"Task id"`
}

type TaskConfirmCmd struct {
	ID       string `arg:"" help:"Task id"`
	Expected string `short:"e" help:"Only confirm if the task is at this step"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
