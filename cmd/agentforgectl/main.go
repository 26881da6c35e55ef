package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	agentforgev1 "github.com/kazz187/agentforge/api/agentforge/v1"
	"github.com/kazz187/agentforge/internal/client"
)

var (
	app = kingpin.New("agentforgectl", "Command line client for the agentforge execution engine")

	serverURL = app.Flag("server", "agentforge server URL").Default("http://localhost:3100").Envar("AGENTFORGE_SERVER_URL").String()
	apiKey    = app.Flag("api-key", "API key").Envar("AGENTFORGE_API_KEY").String()
	userID    = app.Flag("user", "User ID to act as").Envar("AGENTFORGE_USER_ID").Required().String()

	submitCmd    = app.Command("submit", "Submit a task for execution")
	submitTaskID = submitCmd.Arg("task-id", "Task ID").Required().Int64()

	cancelCmd  = app.Command("cancel", "Cancel a queued or running execution")
	cancelExec = cancelCmd.Arg("execution-id", "Execution ID").Required().String()

	getCmd  = app.Command("get", "Show execution details")
	getExec = getCmd.Arg("execution-id", "Execution ID").Required().String()

	logsCmd    = app.Command("logs", "Show execution logs")
	logsExec   = logsCmd.Arg("execution-id", "Execution ID").Required().String()
	logsLimit  = logsCmd.Flag("limit", "Maximum number of entries").Default("100").Int32()
	logsOffset = logsCmd.Flag("offset", "Number of entries to skip").Default("0").Int32()

	historyCmd    = app.Command("history", "List the executions of a task")
	historyTaskID = historyCmd.Arg("task-id", "Task ID").Required().Int64()
	historyLimit  = historyCmd.Flag("limit", "Maximum number of entries").Default("20").Int32()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	c := client.NewExecutionClient(client.Config{
		BaseURL: *serverURL,
		APIKey:  *apiKey,
		UserID:  *userID,
	})

	var err error
	switch command {
	case submitCmd.FullCommand():
		err = handleSubmit(ctx, c, *submitTaskID)
	case cancelCmd.FullCommand():
		err = handleCancel(ctx, c, *cancelExec)
	case getCmd.FullCommand():
		err = handleGet(ctx, c, *getExec)
	case logsCmd.FullCommand():
		err = handleLogs(ctx, c, *logsExec, *logsLimit, *logsOffset)
	case historyCmd.FullCommand():
		err = handleHistory(ctx, c, *historyTaskID, *historyLimit)
	}
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error [%s]: %v\n", connect.CodeOf(err), err)
		os.Exit(1)
	}
}

func handleSubmit(ctx context.Context, c *client.ExecutionClient, taskID int64) error {
	exec, err := c.SubmitTask(ctx, taskID)
	if err != nil {
		return err
	}
	color.Green("Submitted task #%d", taskID)
	printExecution(exec)
	return nil
}

func handleCancel(ctx context.Context, c *client.ExecutionClient, executionID string) error {
	exec, err := c.CancelExecution(ctx, executionID)
	if err != nil {
		return err
	}
	color.Yellow("Cancelled execution %s", executionID)
	printExecution(exec)
	return nil
}

func handleGet(ctx context.Context, c *client.ExecutionClient, executionID string) error {
	exec, err := c.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	printExecution(exec)
	return nil
}

func handleLogs(ctx context.Context, c *client.ExecutionClient, executionID string, limit, offset int32) error {
	logs, total, err := c.ListExecutionLogs(ctx, executionID, limit, offset)
	if err != nil {
		return err
	}
	for _, l := range logs {
		fmt.Printf("%s %s %s\n",
			color.HiBlackString(l.CreatedAt.Local().Format(time.TimeOnly)),
			logTypeColor(l.Type).Sprintf("%-8s", l.Type),
			l.Message,
		)
	}
	fmt.Println(color.HiBlackString("%d of %d entries", len(logs), total))
	return nil
}

func handleHistory(ctx context.Context, c *client.ExecutionClient, taskID int64, limit int32) error {
	execs, total, err := c.ListExecutions(ctx, taskID, limit, 0)
	if err != nil {
		return err
	}
	for _, e := range execs {
		fmt.Printf("%s  %s  %s\n",
			e.ID,
			statusColor(e.Status).Sprintf("%-10s", e.Status),
			e.CreatedAt.Local().Format(time.DateTime),
		)
	}
	fmt.Println(color.HiBlackString("%d of %d executions", len(execs), total))
	return nil
}

func printExecution(e *agentforgev1.Execution) {
	bold := color.New(color.Bold)
	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Printf("  %s %s\n", bold.Sprintf("%-10s", label), value)
	}
	row("ID", e.ID)
	row("Task", fmt.Sprintf("#%d", e.TaskID))
	row("Status", statusColor(e.Status).Sprint(e.Status))
	row("Branch", e.BranchName)
	row("Commit", e.CommitURL)
	if e.CIStatus != "" {
		row("CI", statusColor(e.CIStatus).Sprint(e.CIStatus)+" "+e.CIURL)
	}
	if e.FilesChanged > 0 {
		row("Files", fmt.Sprint(e.FilesChanged))
	}
	row("Error", e.Error)
}

func statusColor(status string) *color.Color {
	switch status {
	case "completed", "success":
		return color.New(color.FgGreen)
	case "failed", "failure":
		return color.New(color.FgRed)
	case "cancelled", "unknown":
		return color.New(color.FgYellow)
	case "running", "pending":
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}

func logTypeColor(t string) *color.Color {
	switch t {
	case "error":
		return color.New(color.FgRed)
	case "warning":
		return color.New(color.FgYellow)
	case "progress":
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}
