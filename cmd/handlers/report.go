package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pulse/internal/config"
	"pulse/internal/store"
)

// NewReportCmd creates the report command group
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect stored analysis reports",
	}

	cmd.AddCommand(NewReportListCmd())
	cmd.AddCommand(NewReportShowCmd())
	cmd.AddCommand(NewReportDeleteCmd())

	return cmd
}

// NewReportListCmd creates the report list command
func NewReportListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			reportListRun(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of reports to list")

	return cmd
}

// NewReportShowCmd creates the report show command
func NewReportShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [report-id]",
		Short: "Print a stored report's full text",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reportShowRun(args[0])
		},
	}
}

// NewReportDeleteCmd creates the report delete command
func NewReportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [report-id]",
		Short: "Delete a stored report and its footnotes",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reportDeleteRun(args[0])
		},
	}
}

func openStore() *store.Store {
	s, err := store.NewStore(config.Get().Store.Directory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to open report store: %v\n", err)
		os.Exit(1)
	}
	return s
}

func reportListRun(limit int) {
	s := openStore()
	defer s.Close()

	reports, err := s.ListReports(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to list reports: %v\n", err)
		os.Exit(1)
	}
	if len(reports) == 0 {
		fmt.Println("No stored reports")
		return
	}

	fmt.Printf("%-36s  %-19s  %-8s  %s\n", "ID", "GENERATED", "SOURCES", "QUERY")
	for _, r := range reports {
		fmt.Printf("%-36s  %-19s  %-8d  %s\n",
			r.ID, r.GeneratedAt.Format("2006-01-02 15:04:05"), r.Footnotes, r.Query)
	}
}

func reportShowRun(id string) {
	s := openStore()
	defer s.Close()

	report, err := s.GetReport(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load report: %v\n", err)
		os.Exit(1)
	}
	if report == nil {
		fmt.Fprintf(os.Stderr, "❌ No report with ID %s\n", id)
		os.Exit(1)
	}

	fmt.Println(report.FullText)
}

func reportDeleteRun(id string) {
	s := openStore()
	defer s.Close()

	if err := s.DeleteReport(id); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to delete report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted report %s\n", id)
}
