// Package classifier decides whether a contract's source imports a standard token interface.
//
// The check is textual on purpose: lines starting with "//" are dropped, then each
// remaining line is matched against an import pattern built from an allow-list of
// token interface names. Multi-line imports and block comments are not understood.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/erc20-detector/internal/core/domain"
)

// DefaultAllowedTokens are the interface names that mark a contract as compliant.
var DefaultAllowedTokens = []string{
	"IERC20",
	"IERC20Metadata",
	"ERC20",
	"ERC20Burnable",
	"ERC20Capped",
	"ERC20Pausable",
	"ERC20Permit",
	"IERC20Permit",
}

const commentMarker = "//"

// Classifier holds the compiled import pattern.
type Classifier struct {
	pattern *regexp.Regexp
}

var defaultClassifier = MustNew(DefaultAllowedTokens)

// New builds a classifier for the given allow-list.
func New(tokens []string) (*Classifier, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("allow-list is empty")
	}

	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("allow-list contains an empty token")
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}

	// import "path/Token.sol"; import {X} from 'path/Token.sol'; import * as X from "Token.sol"
	expr := `import\s+(?:[^"']*\s+from\s+)?["'][^"']*\b(?:` + strings.Join(quoted, "|") + `)\.sol["']`
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile import pattern: %w", err)
	}
	return &Classifier{pattern: pattern}, nil
}

// MustNew is like New but panics on error.
func MustNew(tokens []string) *Classifier {
	c, err := New(tokens)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the classifier for DefaultAllowedTokens.
func Default() *Classifier {
	return defaultClassifier
}

// FindAllowedImports returns the non-comment lines that import an allow-listed token.
func (c *Classifier) FindAllowedImports(source string) []string {
	var matches []string
	for _, line := range strings.Split(source, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), commentMarker) {
			continue
		}
		if c.pattern.MatchString(line) {
			matches = append(matches, line)
		}
	}
	return matches
}

// IsCompliant reports whether at least one allowed import survives comment filtering.
func (c *Classifier) IsCompliant(source string) bool {
	return len(c.FindAllowedImports(source)) > 0
}

// Result is a batch split by verdict.
type Result struct {
	Compliant    []int64
	NonCompliant []int64
}

// Partition classifies every contract of a batch. Each ID lands in exactly one side.
func (c *Classifier) Partition(contracts []domain.ContractToAnalyze) Result {
	var res Result
	for _, contract := range contracts {
		if c.IsCompliant(contract.SourceCode) {
			res.Compliant = append(res.Compliant, contract.ID)
		} else {
			res.NonCompliant = append(res.NonCompliant, contract.ID)
		}
	}
	return res
}

// IsCompliant classifies source with the default allow-list.
func IsCompliant(source string) bool {
	return defaultClassifier.IsCompliant(source)
}
