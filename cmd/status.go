package cmd

import (
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sunbeam/internal/config"
	"sunbeam/internal/local"
	"sunbeam/pkg/logging"
)

func newStatusCmd() *cobra.Command {
	var deploymentPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the deployment's current readiness",
		Long: `Status prints the service's last reported status together with a
per-relation readiness table, read from the same files the serve loop uses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(logging.LevelWarn, os.Stderr)
			return runStatus(cmd, deploymentPath)
		},
	}

	cmd.Flags().StringVar(&deploymentPath, "deployment", "deployment.yaml", "path to the deployment declaration")
	return cmd
}

func runStatus(cmd *cobra.Command, deploymentPath string) error {
	deployment, err := config.Load(deploymentPath)
	if err != nil {
		return err
	}

	baseDir := filepath.Dir(deploymentPath)
	relationsDir := filepath.Join(baseDir, "relations")

	status, message, err := local.NewStatusFile(filepath.Join(baseDir, "status.yaml")).Read()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	summary := table.NewWriter()
	summary.SetOutputMirror(out)
	summary.AppendHeader(table.Row{"Service", "Kind", "Status", "Message"})
	summary.AppendRow(table.Row{deployment.Service, deployment.Kind, status, message})
	summary.Render()

	relations := table.NewWriter()
	relations.SetOutputMirror(out)
	relations.AppendHeader(table.Row{"Relation", "Data", "Keys"})
	for _, name := range deployment.Relations {
		if name == "peers" {
			relations.AppendRow(table.Row{name, "peer group", "-"})
			continue
		}
		negotiator := local.NewNegotiator(relationsDir, name)
		values := negotiator.NegotiatedValues()
		state := "waiting"
		if len(values) > 0 {
			state = "present"
		}
		relations.AppendRow(table.Row{name, state, len(values)})
	}
	relations.Render()

	return nil
}
