package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/erc20-detector/internal/core/classifier"
)

var allowedTokens []string

var classifyCmd = &cobra.Command{
	Use:   "classify <file.sol>...",
	Short: "Classify local Solidity files without touching the queue or database",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().StringSliceVar(&allowedTokens, "tokens", classifier.DefaultAllowedTokens, "allow-listed token contracts")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	c, err := classifier.New(allowedTokens)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, path := range args {
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		matches := c.FindAllowedImports(string(source))
		verdict := "non-compliant"
		if len(matches) > 0 {
			verdict = "compliant"
		}
		_, _ = fmt.Fprintf(out, "%s: %s\n", path, verdict)
		for _, line := range matches {
			_, _ = fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}
