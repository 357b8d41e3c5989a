/*
Package cli provides command-line helpers shared by the warden commands.

Output Formatting:

Command results are written as text, JSON or CSV. Results that implement
Tabular render as aligned columns in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Status Lines:

A Printer writes check marks, warnings and errors. Colors are used only
when the writer is a terminal:

	p := cli.NewPrinter(os.Stdout)
	p.Success("configuration valid")

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
